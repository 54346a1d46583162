package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CACONSOLE_CONFIG"), "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	baseLogger, err := cfg.BuildLogger(false)
	if err != nil {
		panic(err)
	}
	defer baseLogger.Sync()
	zap.ReplaceGlobals(baseLogger)
	logger := baseLogger.With(zap.String("package", "main"))

	logger.Info("CA console starting...",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("listen_address", cfg.ListenAddress),
		zap.String("storage_type", cfg.StorageType))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, baseLogger); err != nil {
		logger.Error("console stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("console stopped")
}
