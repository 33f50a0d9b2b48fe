package store

import (
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the shared-database store.
type PostgresStore struct {
	*sqlStore
}

var (
	_ Repository = (*PostgresStore)(nil)
	_ DedupRepo  = (*PostgresStore)(nil)
)

// NewPostgresStore connects to PostgreSQL and applies the schema.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sqlx.Connect(DriverPostgres, cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore.NewPostgresStore: failed to connect", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("PostgresStore.NewPostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")
	return &PostgresStore{sqlStore: newSQLStore(db)}, nil
}
