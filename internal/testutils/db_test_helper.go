package testutils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	journalDBName     = "caconsole_journal"
	journalDBUser     = "caconsole"
	journalDBPassword = "caconsole"
	defaultPGImage    = "postgres:15-alpine"
)

// SetupTestDB starts a throwaway PostgreSQL container for journal tests and
// returns its DSN. The container is terminated when the test ends. Tests are
// skipped in -short mode; CACONSOLE_TEST_PG_IMAGE overrides the image.
func SetupTestDB(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	image := os.Getenv("CACONSOLE_TEST_PG_IMAGE")
	if image == "" {
		image = defaultPGImage
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ready := wait.ForAll(
		wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
		wait.ForListeningPort(nat.Port("5432/tcp")).
			WithStartupTimeout(time.Minute),
	).WithDeadline(2 * time.Minute)

	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase(journalDBName),
		postgres.WithUsername(journalDBUser),
		postgres.WithPassword(journalDBPassword),
		testcontainers.WithWaitStrategy(ready),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
		defer stop()
		if err := container.Terminate(stopCtx); err != nil {
			t.Logf("WARN: failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return dsn
}
