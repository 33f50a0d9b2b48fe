// Package store provides persistence for customers, conversations, message
// logs and confirmed orders.
//
// Two SQL backends (SQLite and PostgreSQL) share one sqlx implementation; an
// in-memory store backs tests and runs without a database.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Driver names returned by DetectDSNType.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ConversationTTL is how long a conversation stays reusable after it starts.
const ConversationTTL = 23 * time.Hour

// Repository is the persistence contract of the ordering assistant.
type Repository interface {
	ListBranches(ctx context.Context) ([]models.Branch, error)
	AddBranch(ctx context.Context, b models.Branch) (models.Branch, error)

	// UpsertCustomer creates the customer on first contact and returns its id.
	UpsertCustomer(ctx context.Context, phone, username string) (int64, error)
	// CustomerIDByPhone returns models.ErrCustomerNotFound for unknown phones.
	CustomerIDByPhone(ctx context.Context, phone string) (int64, error)
	// PhoneByCustomerID returns models.ErrCustomerNotFound for unknown ids.
	PhoneByCustomerID(ctx context.Context, customerID int64) (string, error)

	// GetOrCreateConversation reuses the customer's active conversation when
	// it started less than ConversationTTL ago; otherwise it closes it and
	// opens a new one.
	GetOrCreateConversation(ctx context.Context, customerID int64) (int64, error)
	AppendMessage(ctx context.Context, customerID, conversationID int64, text string, dir models.Direction) error
	// GetHistory returns the last limit messages of a conversation, oldest
	// first. limit <= 0 returns everything.
	GetHistory(ctx context.Context, conversationID int64, limit int) ([]models.ChatMessage, error)

	// InsertConfirmedOrder stores o with status confirmed and a fresh
	// reference, returning the stored row.
	InsertConfirmedOrder(ctx context.Context, o models.Order) (models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	// UpdateOrderStatus enforces the status transition map.
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType guesses the database driver for dsn. URLs with a postgres
// scheme and libpq key=value strings are PostgreSQL; everything else is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") ||
		(strings.Contains(d, "user=") && strings.Contains(d, " ")) {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open picks the backend for dsn. An empty dsn yields an in-memory store.
func Open(dsn string) (Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DriverPostgres:
		s, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}
