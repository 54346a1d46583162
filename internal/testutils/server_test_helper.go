package testutils

import (
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/blockadesystems/caconsole/internal/auth"
	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/server"
	"github.com/blockadesystems/caconsole/internal/storage"
)

// TestTokenSecret signs the tokens of a server built by SetupTestServer.
var TestTokenSecret = []byte("test-secret-test-secret-test-sec")

// TestServer bundles a console wired to a FakeAuthority.
type TestServer struct {
	Echo      *echo.Echo
	Authority *FakeAuthority
	Store     storage.Storage
	Config    *config.Config
	Issuer    *auth.Issuer
}

// Token mints a bearer token for subject with roles.
func (s *TestServer) Token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token, err := s.Issuer.Issue(subject, roles)
	if err != nil {
		t.Fatalf("Failed to issue test token: %v", err)
	}
	return "Bearer " + token
}

// SetupTestServer builds a console in front of a fresh FakeAuthority. The
// journal is kept in memory unless dbConnStr (a DSN from SetupTestDB) is set.
func SetupTestServer(t *testing.T, dbConnStr string) *TestServer {
	t.Helper()

	testLogger := zaptest.NewLogger(t)
	authority := NewFakeAuthority(t)

	cfg := config.Default()
	cfg.APIBaseURL = authority.URL
	cfg.RequestTimeout = 5 * time.Second
	cfg.Contact = "pki@example.com"

	var store storage.Storage = storage.NewMemoryStorage()
	if dbConnStr != "" {
		pg, err := storage.NewPostgreSQLStorageFromDSN(dbConnStr)
		if err != nil {
			t.Fatalf("Failed to initialize storage for test: %v", err)
		}
		store = pg
		cfg.StorageType = "postgres"
	}
	t.Cleanup(func() { store.Close() })

	api, err := client.New(cfg.APIBaseURL, client.Options{Timeout: cfg.RequestTimeout, Logger: testLogger})
	if err != nil {
		t.Fatalf("Failed to create CA API client: %v", err)
	}

	issuer, err := auth.NewIssuer(TestTokenSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token issuer: %v", err)
	}
	verifier, err := auth.NewVerifier(TestTokenSecret)
	if err != nil {
		t.Fatalf("Failed to create token verifier: %v", err)
	}

	return &TestServer{
		Echo:      server.New(api, store, cfg, verifier, testLogger),
		Authority: authority,
		Store:     store,
		Config:    cfg,
		Issuer:    issuer,
	}
}
