package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq" // PostgreSQL driver and error type
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blockadesystems/caconsole/internal/model"
)

var logger *zap.Logger

// init initializes the package logger.
func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize zap logger: %v", err))
	}
	logger = l.With(zap.String("package", "storage"))
}

const (
	// DefaultListLimit applies when ListActions is called with a non-positive limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single ListActions page.
	MaxListLimit = 1000
)

// ErrInvalidAction is returned for actions missing an ID or operation.
var ErrInvalidAction = errors.New("storage: action needs an id and an operation")

// --- Interfaces ---

// Querier defines common methods implemented by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ActionFilter narrows ListActions. Zero values match everything.
type ActionFilter struct {
	CAID  string
	Limit int
}

// Storage persists the console journal.
type Storage interface {
	SaveAction(ctx context.Context, action *model.Action) error
	// ListActions returns the newest actions first.
	ListActions(ctx context.Context, filter ActionFilter) ([]*model.Action, error)
	Close() error
}

// NewStorage is the factory function.
func NewStorage(storageType string, dbHost string, dbUser string, dbPassword string, dbName string, dbPort int, dbSSLMode string, dbCert string, dbKey string, dbRootCert string) (Storage, error) {
	switch strings.ToLower(storageType) {
	case "memory", "":
		logger.Info("Using in-memory journal storage; actions are lost on restart")
		return NewMemoryStorage(), nil
	case "postgres":
		return NewPostgreSQLStorage(dbHost, dbUser, dbPassword, dbName, dbPort, dbSSLMode, dbCert, dbKey, dbRootCert)
	default:
		logger.Error("Invalid storage type specified", zap.String("storage_type", storageType))
		return nil, fmt.Errorf("storage: invalid storage type: %s", storageType)
	}
}

func validateAction(action *model.Action) error {
	if action == nil || action.ID == "" || action.Operation == "" {
		return ErrInvalidAction
	}
	return nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// --- PostgreSQL Implementation ---

// PostgreSQLStorage holds the connection pool.
type PostgreSQLStorage struct {
	db *sql.DB
}

// Ensure PostgreSQLStorage implements Storage (compile-time check).
var _ Storage = (*PostgreSQLStorage)(nil)

// NewPostgreSQLStorage creates a new PostgreSQLStorage instance and ensures schema exists.
func NewPostgreSQLStorage(dbHost string, dbUser string, dbPassword string, dbName string, dbPort int, dbSSLMode string, dbCert string, dbKey string, dbRootCert string) (*PostgreSQLStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		dbHost, dbUser, dbPassword, dbName, dbPort, dbSSLMode,
	)
	if dbCert != "" {
		connStr += " sslcert=" + dbCert
	}
	if dbKey != "" {
		connStr += " sslkey=" + dbKey
	}
	if dbRootCert != "" {
		connStr += " sslrootcert=" + dbRootCert
	}
	return openPostgreSQL(connStr, zap.String("host", dbHost), zap.Int("port", dbPort), zap.String("dbname", dbName))
}

// NewPostgreSQLStorageFromDSN connects using a libpq connection string or URL.
func NewPostgreSQLStorageFromDSN(dsn string) (*PostgreSQLStorage, error) {
	return openPostgreSQL(dsn)
}

func openPostgreSQL(connStr string, fields ...zap.Field) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Error("Failed to open PostgreSQL connection", zap.Error(err))
		return nil, fmt.Errorf("storage: failed to open PostgreSQL database: %w", err)
	}

	// The journal is append-mostly; a small pool is plenty.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		logger.Error("Failed to ping PostgreSQL database", append(fields, zap.Error(err))...)
		return nil, fmt.Errorf("storage: failed to connect to PostgreSQL database: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL database", fields...)

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer schemaCancel()
	if err := ensureSchema(schemaCtx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("PostgreSQLStorage initialized")
	return &PostgreSQLStorage{db: db}, nil
}

// ensureSchema creates tables and indexes if they don't exist.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS console_actions (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL,
			ca_id TEXT NOT NULL DEFAULT '',
			serial_number TEXT NOT NULL DEFAULT '',
			succeeded BOOLEAN NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_console_actions_created_at ON console_actions (created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_console_actions_ca_id ON console_actions (ca_id);`,
	}

	logger.Info("Executing CREATE TABLE IF NOT EXISTS and CREATE INDEX IF NOT EXISTS statements...")
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if pqErr, ok := err.(*pq.Error); ok {
				logger.Error("Failed to execute schema statement", zap.Error(err),
					zap.Int("statement_index", i),
					zap.String("code", string(pqErr.Code)),
					zap.String("detail", pqErr.Detail),
					zap.String("hint", pqErr.Hint),
				)
			} else {
				logger.Error("Failed to execute schema statement", zap.Error(err), zap.Int("statement_index", i))
			}
			return fmt.Errorf("storage: failed to initialize database schema: %w", err)
		}
	}
	logger.Info("Database schema initialization check complete.")
	return nil
}

// Close shuts down the database connection pool.
func (s *PostgreSQLStorage) Close() error {
	logger.Info("Closing database connection pool")
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgreSQLStorage) SaveAction(ctx context.Context, action *model.Action) error {
	return saveAction(ctx, s.db, action)
}

func (s *PostgreSQLStorage) ListActions(ctx context.Context, filter ActionFilter) ([]*model.Action, error) {
	return listActions(ctx, s.db, filter)
}

// --- Action Helpers ---

func saveAction(ctx context.Context, q Querier, action *model.Action) error {
	if err := validateAction(action); err != nil {
		return err
	}
	query := `INSERT INTO console_actions (id, request_id, actor, operation, ca_id, serial_number, succeeded, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.ExecContext(ctx, query,
		action.ID, action.RequestID, action.Actor, string(action.Operation),
		action.CAID, action.SerialNumber, action.Succeeded, action.Error, action.CreatedAt.UTC(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("storage: action '%s' already recorded: %w", action.ID, err)
		}
		return fmt.Errorf("storage: failed to save action '%s': %w", action.ID, err)
	}
	logger.Debug("Action saved", zap.String("action_id", action.ID), zap.String("operation", string(action.Operation)))
	return nil
}

func listActions(ctx context.Context, q Querier, filter ActionFilter) ([]*model.Action, error) {
	limit := normalizeLimit(filter.Limit)
	query := `SELECT id, request_id, actor, operation, ca_id, serial_number, succeeded, error, created_at
		FROM console_actions
		WHERE ($1 = '' OR ca_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := q.QueryContext(ctx, query, filter.CAID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to query actions: %w", err)
	}
	defer rows.Close()

	actions := make([]*model.Action, 0)
	for rows.Next() {
		a := &model.Action{}
		var op string
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Actor, &op, &a.CAID, &a.SerialNumber, &a.Succeeded, &a.Error, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: failed to scan action row: %w", err)
		}
		a.Operation = model.Operation(op)
		a.CreatedAt = a.CreatedAt.UTC()
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: error iterating action rows: %w", err)
	}
	return actions, nil
}

// --- In-memory Implementation ---

// MemoryStorage keeps the journal in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	actions []*model.Action
	ids     map[string]struct{}
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty journal.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{ids: make(map[string]struct{})}
}

func (m *MemoryStorage) SaveAction(_ context.Context, action *model.Action) error {
	if err := validateAction(action); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.ids[action.ID]; dup {
		return fmt.Errorf("storage: action '%s' already recorded", action.ID)
	}
	stored := *action
	stored.CreatedAt = stored.CreatedAt.UTC()
	m.actions = append(m.actions, &stored)
	m.ids[action.ID] = struct{}{}
	return nil
}

func (m *MemoryStorage) ListActions(_ context.Context, filter ActionFilter) ([]*model.Action, error) {
	limit := normalizeLimit(filter.Limit)
	m.mu.RLock()
	matched := make([]*model.Action, 0, len(m.actions))
	for _, a := range m.actions {
		if filter.CAID == "" || a.CAID == filter.CAID {
			c := *a
			matched = append(matched, &c)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error { return nil }
