package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/console"
)

var (
	configPath string
	apiURL     string
	verbose    bool

	cfg       *config.Config
	cliLogger *zap.Logger
	apiClient *client.Client
	api       console.API
)

var rootCmd = &cobra.Command{
	Use:   "caconsole",
	Short: "Browse and manage certificate authorities through their REST API",
	Long: `caconsole drives the CA console from a terminal.

Every command opens the console page it targets, loads it and prints the
resulting view as JSON. Commands that create or change something print the
page the console lands on afterwards.

Examples:
  # List visible CAs, newest serial first
  caconsole ca list --sort serialNumber --reverse

  # Issue a certificate and show it
  caconsole cert issue 1001 --host www.example.com

  # Run the HTTP console
  caconsole serve --config /etc/caconsole.yaml`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", os.Getenv("CACONSOLE_CONFIG"), "YAML configuration file")
	flags.StringVar(&apiURL, "api", "", "CA API base URL (overrides api_base_url)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log at info level")

	rootCmd.AddCommand(caCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(serveCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}

	cliLogger, err = cfg.BuildLogger(!verbose && cmd != serveCmd)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	c, err := client.New(cfg.APIBaseURL, client.Options{
		Timeout:    cfg.RequestTimeout,
		RootCAFile: cfg.APICAFile,
		Logger:     cliLogger,
	})
	if err != nil {
		return err
	}
	apiClient, api = c, c
	return nil
}

// visit opens path in a fresh session, loads it and prints the view. A load
// error is returned after the partial view is printed.
func visit(cmd *cobra.Command, path string, configure func(console.Page)) error {
	session := console.NewSession(api, cliLogger)
	defer session.Close()
	session.Navigate(path)
	return show(cmd, session, configure)
}

func show(cmd *cobra.Command, session *console.Session, configure func(console.Page)) error {
	_, page := session.Current()
	if page == nil {
		return console.ErrNotLoaded
	}
	if configure != nil {
		configure(page)
	}
	loadErr := session.Load(cmd.Context())
	if err := printJSON(cmd, viewOf(session)); err != nil {
		return err
	}
	return loadErr
}

func viewOf(session *console.Session) any {
	route, page := session.Current()
	switch p := page.(type) {
	case *console.CAListModel:
		return p.View()
	case *console.CADetailModel:
		return p.View()
	case *console.CertDetailModel:
		return p.View()
	case *console.CAImportModel:
		return p.Form()
	}
	out := map[string]string{"page": route.Kind.String(), "productName": cfg.ProductName}
	if route.Kind == console.RouteContact && cfg.Contact != "" {
		out["contact"] = cfg.Contact
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
