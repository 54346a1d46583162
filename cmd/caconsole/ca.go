package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockadesystems/caconsole/internal/console"
)

// caCmd is the parent command for CA pages.
var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Certificate Authority pages",
	Long: `List, show, create and import Certificate Authorities.

Examples:
  caconsole ca list
  caconsole ca show 1001
  caconsole ca create --name "Lab Root"
  caconsole ca import --cert ca.pem --key ca.key --password env:CA_KEY_PASS`,
}

var caListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible CAs",
	Args:  cobra.NoArgs,
	RunE:  runCAList,
}

var caShowCmd = &cobra.Command{
	Use:   "show <caId>",
	Short: "Show a CA and its certificates with revocation status",
	Args:  cobra.ExactArgs(1),
	RunE:  runCAShow,
}

var caCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new CA and show it",
	Args:  cobra.NoArgs,
	RunE:  runCACreate,
}

var caImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an existing CA certificate and key and show it",
	Long: `Import an existing CA certificate and key and show it.

The PEM files are sent unchanged; the CA API validates them. The password
may be given literally or as env:VAR_NAME.`,
	Args: cobra.NoArgs,
	RunE: runCAImport,
}

var (
	caListSort    string
	caListReverse bool
	caShowSort    string
	caShowReverse bool

	caCreateName   string
	caCreateHidden bool

	caImportCert     string
	caImportKey      string
	caImportPassword string
	caImportHidden   bool
)

func init() {
	caCmd.AddCommand(caListCmd)
	caCmd.AddCommand(caShowCmd)
	caCmd.AddCommand(caCreateCmd)
	caCmd.AddCommand(caImportCmd)

	caListCmd.Flags().StringVar(&caListSort, "sort", console.PredicateName, "Sort by: name, serialNumber")
	caListCmd.Flags().BoolVar(&caListReverse, "reverse", false, "Reverse the sort order")

	caShowCmd.Flags().StringVar(&caShowSort, "sort", console.PredicateHost, "Sort certificates by: host, serialNumber, isRevoked")
	caShowCmd.Flags().BoolVar(&caShowReverse, "reverse", false, "Reverse the sort order")

	caCreateCmd.Flags().StringVar(&caCreateName, "name", "", "Subject common name of the new CA")
	caCreateCmd.Flags().BoolVar(&caCreateHidden, "hidden", false, "Leave the CA out of listings")
	_ = caCreateCmd.MarkFlagRequired("name")

	importFlags := caImportCmd.Flags()
	importFlags.StringVar(&caImportCert, "cert", "", "PEM certificate file")
	importFlags.StringVar(&caImportKey, "key", "", "PEM private key file")
	importFlags.StringVar(&caImportPassword, "password", "", "Private key password (or env:VAR_NAME)")
	importFlags.BoolVar(&caImportHidden, "hidden", false, "Leave the CA out of listings")
	_ = caImportCmd.MarkFlagRequired("cert")
	_ = caImportCmd.MarkFlagRequired("key")
}

func runCAList(cmd *cobra.Command, args []string) error {
	return visit(cmd, console.PathCAList, func(p console.Page) {
		if m, ok := p.(*console.CAListModel); ok {
			m.SetOrder(caListSort, caListReverse)
		}
	})
}

func runCAShow(cmd *cobra.Command, args []string) error {
	return visit(cmd, console.PathCA(args[0]), func(p console.Page) {
		if m, ok := p.(*console.CADetailModel); ok {
			m.SetOrder(caShowSort, caShowReverse)
		}
	})
}

func runCACreate(cmd *cobra.Command, args []string) error {
	spec := console.NewCASpec()
	spec.Name = caCreateName
	spec.Visible = !caCreateHidden

	session := console.NewSession(api, cliLogger)
	defer session.Close()
	list := console.NewCAListModel(api, session, cliLogger)
	if _, err := list.Create(cmd.Context(), spec); err != nil {
		return err
	}
	return show(cmd, session, nil)
}

func runCAImport(cmd *cobra.Command, args []string) error {
	certPEM, err := os.ReadFile(caImportCert)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(caImportKey)
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}

	spec := console.NewCASpec()
	spec.Visible = !caImportHidden
	spec.PEMCertificate = string(certPEM)
	spec.PEMKey = string(keyPEM)
	spec.PEMKeyPassword = resolveSecret(caImportPassword)

	session := console.NewSession(api, cliLogger)
	defer session.Close()
	session.Navigate(console.PathImportCA)
	_, page := session.Current()
	if _, err := page.(*console.CAImportModel).Import(cmd.Context(), spec); err != nil {
		return err
	}
	return show(cmd, session, nil)
}

// resolveSecret expands env:VAR_NAME.
func resolveSecret(value string) string {
	if name, ok := strings.CutPrefix(value, "env:"); ok {
		return os.Getenv(name)
	}
	return value
}
