package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/auth"
	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Run serves the console until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, baseLogger *zap.Logger) error {
	api, err := client.New(cfg.APIBaseURL, client.Options{
		Timeout:    cfg.RequestTimeout,
		RootCAFile: cfg.APICAFile,
		Logger:     baseLogger,
	})
	if err != nil {
		return fmt.Errorf("server: failed to create CA API client: %w", err)
	}

	store, err := storage.NewStorage(
		cfg.StorageType,
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
		cfg.DBCert,
		cfg.DBKey,
		cfg.DBRootCert,
	)
	if err != nil {
		return fmt.Errorf("server: failed to initialize storage: %w", err)
	}
	defer store.Close()
	baseLogger.Info("storage initialized", zap.String("storage_type", cfg.StorageType))

	verifier, err := tokenVerifier(cfg, baseLogger)
	if err != nil {
		return err
	}

	certFile, keyFile, err := EnsureTLSCertificates(cfg)
	if err != nil {
		return err
	}

	e := New(api, store, cfg, verifier, baseLogger)

	errCh := make(chan error, 1)
	go func() {
		baseLogger.Info("listening on address",
			zap.String("address", cfg.ListenAddress),
			zap.Bool("tls", certFile != ""),
			zap.String("api_base_url", cfg.APIBaseURL))
		if certFile != "" {
			errCh <- e.StartTLS(cfg.ListenAddress, certFile, keyFile)
		} else {
			errCh <- e.Start(cfg.ListenAddress)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listener failed: %w", err)
	case <-ctx.Done():
	}

	baseLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown failed: %w", err)
	}
	return nil
}

// tokenVerifier uses the configured secret, or a random one that makes every
// mutation route reject all tokens minted elsewhere.
func tokenVerifier(cfg *config.Config, baseLogger *zap.Logger) (*auth.Verifier, error) {
	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, auth.MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("server: failed to generate token secret: %w", err)
		}
		baseLogger.Warn("no token_secret configured; using a random one, mutations will reject every token")
	}
	verifier, err := auth.NewVerifier(secret)
	if err != nil {
		return nil, fmt.Errorf("server: invalid token_secret: %w", err)
	}
	return verifier, nil
}
