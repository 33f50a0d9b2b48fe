package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Listing bounds for ListOrders.
const (
	DefaultOrderPageSize = 10
	MaxOrderPageSize     = 100
)

// sqlStore implements Repository on any sqlx database whose dialect supports
// ON CONFLICT and RETURNING. Queries are written with '?' placeholders and
// rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func newSQLStore(db *sqlx.DB) *sqlStore {
	return &sqlStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *sqlStore) ListBranches(ctx context.Context) ([]models.Branch, error) {
	var branches []models.Branch
	err := s.db.SelectContext(ctx, &branches, `SELECT id, name, location, delivery_time FROM branches ORDER BY id`)
	if err != nil {
		slog.Error("Store.ListBranches: query failed", "error", err)
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

func (s *sqlStore) AddBranch(ctx context.Context, b models.Branch) (models.Branch, error) {
	stmt, err := s.db.PrepareNamedContext(ctx,
		`INSERT INTO branches (name, location, delivery_time) VALUES (:name, :location, :delivery_time) RETURNING id`)
	if err != nil {
		return models.Branch{}, fmt.Errorf("failed to prepare branch insert: %w", err)
	}
	defer stmt.Close()
	if err := stmt.GetContext(ctx, &b.ID, b); err != nil {
		slog.Error("Store.AddBranch: insert failed", "name", b.Name, "error", err)
		return models.Branch{}, fmt.Errorf("failed to insert branch %s: %w", b.Name, err)
	}
	slog.Debug("Store.AddBranch: branch stored", "id", b.ID, "name", b.Name)
	return b, nil
}

func (s *sqlStore) UpsertCustomer(ctx context.Context, phone, username string) (int64, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO customers (phone_number, username, created_at) VALUES (?, ?, ?) ON CONFLICT (phone_number) DO NOTHING`),
		phone, nilIfEmpty(username), s.now())
	if err != nil {
		slog.Error("Store.UpsertCustomer: insert failed", "phone", phone, "error", err)
		return 0, fmt.Errorf("failed to upsert customer %s: %w", phone, err)
	}
	return s.CustomerIDByPhone(ctx, phone)
}

func (s *sqlStore) CustomerIDByPhone(ctx context.Context, phone string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`SELECT id FROM customers WHERE phone_number = ?`), phone)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrCustomerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up customer %s: %w", phone, err)
	}
	return id, nil
}

func (s *sqlStore) PhoneByCustomerID(ctx context.Context, customerID int64) (string, error) {
	var phone string
	err := s.db.GetContext(ctx, &phone, s.db.Rebind(`SELECT phone_number FROM customers WHERE id = ?`), customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up phone for customer %d: %w", customerID, err)
	}
	return phone, nil
}

type conversationRow struct {
	ID        int64     `db:"id"`
	StartedAt time.Time `db:"started_at"`
}

func (s *sqlStore) GetOrCreateConversation(ctx context.Context, customerID int64) (int64, error) {
	now := s.now()

	var cur conversationRow
	err := s.db.GetContext(ctx, &cur, s.db.Rebind(
		`SELECT id, started_at FROM conversations WHERE customer_id = ? AND status = 'active' ORDER BY started_at DESC, id DESC LIMIT 1`),
		customerID)
	switch {
	case err == nil:
		if now.Sub(cur.StartedAt) < ConversationTTL {
			slog.Debug("Store.GetOrCreateConversation: reusing active conversation", "conversation_id", cur.ID)
			return cur.ID, nil
		}
		slog.Debug("Store.GetOrCreateConversation: closing expired conversation", "conversation_id", cur.ID)
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(
			`UPDATE conversations SET status = 'closed', ended_at = ? WHERE id = ?`), now, cur.ID); err != nil {
			return 0, fmt.Errorf("failed to close conversation %d: %w", cur.ID, err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("failed to find active conversation: %w", err)
	}

	var id int64
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(
		`INSERT INTO conversations (customer_id, status, started_at) VALUES (?, 'active', ?) RETURNING id`),
		customerID, now).Scan(&id)
	if err != nil {
		slog.Error("Store.GetOrCreateConversation: insert failed", "customer_id", customerID, "error", err)
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}
	slog.Debug("Store.GetOrCreateConversation: conversation created", "conversation_id", id, "customer_id", customerID)
	return id, nil
}

func (s *sqlStore) AppendMessage(ctx context.Context, customerID, conversationID int64, text string, dir models.Direction) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO messages (customer_id, conversation_id, message_text, direction, created_at) VALUES (?, ?, ?, ?, ?)`),
		customerID, conversationID, text, string(dir), s.now())
	if err != nil {
		slog.Error("Store.AppendMessage: insert failed", "customer_id", customerID, "direction", dir, "error", err)
		return fmt.Errorf("failed to log %s message: %w", dir, err)
	}
	return nil
}

type messageRow struct {
	Direction string `db:"direction"`
	Text      string `db:"message_text"`
}

func (s *sqlStore) GetHistory(ctx context.Context, conversationID int64, limit int) ([]models.ChatMessage, error) {
	q := `SELECT direction, message_text FROM messages WHERE conversation_id = ? ORDER BY id DESC`
	args := []interface{}{conversationID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		slog.Error("Store.GetHistory: query failed", "conversation_id", conversationID, "error", err)
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]models.ChatMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Text == "" {
			continue
		}
		history = append(history, models.ChatMessage{
			Role:    models.Direction(rows[i].Direction).Role(),
			Content: rows[i].Text,
		})
	}
	return history, nil
}

func (s *sqlStore) InsertConfirmedOrder(ctx context.Context, o models.Order) (models.Order, error) {
	o.Reference = uuid.NewString()
	o.Status = models.OrderStatusConfirmed
	o.CreatedAt = s.now()

	stmt, err := s.db.PrepareNamedContext(ctx, `
		INSERT INTO orders (reference, customer_id, order_type, items, total_price,
			delivery_address, contact_phone, branch, customer_name, status, created_at)
		VALUES (:reference, :customer_id, :order_type, :items, :total_price,
			:delivery_address, :contact_phone, :branch, :customer_name, :status, :created_at)
		RETURNING id`)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.GetContext(ctx, &o.ID, o); err != nil {
		slog.Error("Store.InsertConfirmedOrder: insert failed", "customer_id", o.CustomerID, "error", err)
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	slog.Info("Store.InsertConfirmedOrder: order stored", "id", o.ID, "reference", o.Reference, "customer_id", o.CustomerID, "total", o.TotalPrice)
	return o, nil
}

func (s *sqlStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	q := `SELECT o.id, o.reference, o.customer_id, o.order_type, o.items, o.total_price, o.delivery_address,
			COALESCE(o.contact_phone, c.phone_number) AS contact_phone, o.branch,
			COALESCE(o.customer_name, c.username) AS customer_name, o.status, o.created_at
		FROM orders o LEFT JOIN customers c ON o.customer_id = c.id WHERE 1 = 1`
	var args []interface{}
	if f.Status != "" {
		q += ` AND o.status = ?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		q += ` AND o.created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	limit, offset := pageBounds(f)
	q += ` ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders, s.db.Rebind(q), args...); err != nil {
		slog.Error("Store.ListOrders: query failed", "error", err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *sqlStore) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cur models.OrderStatus
	err = tx.GetContext(ctx, &cur, tx.Rebind(`SELECT status FROM orders WHERE id = ?`), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read order %d: %w", orderID, err)
	}
	if err := models.ValidateTransition(cur, status); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE orders SET status = ? WHERE id = ?`), string(status), orderID); err != nil {
		return fmt.Errorf("failed to update order %d: %w", orderID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	slog.Info("Store.UpdateOrderStatus: status changed", "id", orderID, "from", cur, "to", status)
	return nil
}

func (s *sqlStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Store.Close: failed to close database", "error", err)
	}
	return err
}

func pageBounds(f models.OrderFilter) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultOrderPageSize
	}
	if limit > MaxOrderPageSize {
		limit = MaxOrderPageSize
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
