package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP console until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	zap.ReplaceGlobals(cliLogger)
	return server.Run(cmd.Context(), cfg, cliLogger)
}
