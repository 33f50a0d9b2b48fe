package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the file-backed store used for single-node deployments.
type SQLiteStore struct {
	*sqlStore
}

// Compile-time checks.
var (
	_ Repository = (*SQLiteStore)(nil)
	_ DedupRepo  = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (creating if needed) the SQLite database at the DSN
// path and applies the schema.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:"))
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore.NewSQLiteStore: failed to create database directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		slog.Error("SQLiteStore.NewSQLiteStore: failed to open database", "error", err)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("SQLiteStore.NewSQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied", "path", dsn)

	return &SQLiteStore{sqlStore: newSQLStore(db)}, nil
}
