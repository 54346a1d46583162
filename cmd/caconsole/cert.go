package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/console"
	"github.com/blockadesystems/caconsole/internal/model"
)

// certCmd is the parent command for certificate pages.
var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Certificate pages",
	Long: `Issue, show, revoke and unrevoke certificates.

Examples:
  caconsole cert issue 1001 --host www.example.com
  caconsole cert show 1001 2001
  caconsole cert revoke 1001 2001`,
}

var certIssueCmd = &cobra.Command{
	Use:   "issue <caId>",
	Short: "Issue a certificate for a host and show it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCertIssue,
}

var certShowCmd = &cobra.Command{
	Use:   "show <caId> <certId>",
	Short: "Show a certificate and whether its CA revokes it",
	Args:  cobra.ExactArgs(2),
	RunE:  runCertShow,
}

var certRevokeCmd = &cobra.Command{
	Use:   "revoke <caId> <certId>",
	Short: "Add a certificate to its CA's CRL and show it again",
	Args:  cobra.ExactArgs(2),
	RunE:  runCertRevoke,
}

var certUnrevokeCmd = &cobra.Command{
	Use:   "unrevoke <caId> <certId>",
	Short: "Remove a certificate from its CA's CRL and show it again",
	Args:  cobra.ExactArgs(2),
	RunE:  runCertUnrevoke,
}

var certIssueHost string

func init() {
	certCmd.AddCommand(certIssueCmd)
	certCmd.AddCommand(certShowCmd)
	certCmd.AddCommand(certRevokeCmd)
	certCmd.AddCommand(certUnrevokeCmd)

	certIssueCmd.Flags().StringVar(&certIssueHost, "host", "", "Host name the certificate is issued for")
	_ = certIssueCmd.MarkFlagRequired("host")
}

func runCertIssue(cmd *cobra.Command, args []string) error {
	if !console.IsValidHost(certIssueHost) {
		cliLogger.Warn("host does not look like a DNS name; sending it anyway", zap.String("host", certIssueHost))
	}

	session := console.NewSession(api, cliLogger)
	defer session.Close()
	session.Navigate(console.PathCA(args[0]))
	_, page := session.Current()
	detail, ok := page.(*console.CADetailModel)
	if !ok {
		return fmt.Errorf("%q is not a CA page", args[0])
	}
	if _, err := detail.IssueCertificate(cmd.Context(), model.CertSpec{Host: certIssueHost}); err != nil {
		return err
	}
	return show(cmd, session, nil)
}

func runCertShow(cmd *cobra.Command, args []string) error {
	return visit(cmd, console.PathCert(args[0], args[1]), nil)
}

func runCertRevoke(cmd *cobra.Command, args []string) error {
	return changeRevocation(cmd, args, (*console.CertDetailModel).Revoke)
}

func runCertUnrevoke(cmd *cobra.Command, args []string) error {
	return changeRevocation(cmd, args, (*console.CertDetailModel).Unrevoke)
}

// changeRevocation loads the certificate page first so the serial number
// sent is the one the CA API reports, then mutates and prints the reload.
func changeRevocation(cmd *cobra.Command, args []string, mutate func(*console.CertDetailModel, context.Context) error) error {
	session := console.NewSession(api, cliLogger)
	defer session.Close()
	session.Navigate(console.PathCert(args[0], args[1]))
	_, page := session.Current()
	detail, ok := page.(*console.CertDetailModel)
	if !ok {
		return fmt.Errorf("%s/%s is not a certificate page", args[0], args[1])
	}
	if err := detail.Load(cmd.Context()); err != nil {
		cliLogger.Warn("certificate page incomplete before revocation change", zap.Error(err))
	}

	mutateErr := mutate(detail, cmd.Context())
	if err := printJSON(cmd, detail.View()); err != nil {
		return err
	}
	return mutateErr
}
