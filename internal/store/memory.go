package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore keeps everything in process memory. It mirrors the SQL
// stores' semantics and is safe for concurrent use.
type InMemoryStore struct {
	mu            sync.Mutex
	now           func() time.Time
	branches      []models.Branch
	customers     map[int64]memCustomer
	byPhone       map[string]int64
	conversations []memConversation
	messages      []memMessage
	orders        []models.Order
	dedup         map[string]*DedupRecord
}

type memCustomer struct {
	phone    string
	username string
}

type memConversation struct {
	id         int64
	customerID int64
	active     bool
	startedAt  time.Time
}

type memMessage struct {
	conversationID int64
	text           string
	dir            models.Direction
}

var (
	_ Repository = (*InMemoryStore)(nil)
	_ DedupRepo  = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:       time.Now,
		customers: make(map[int64]memCustomer),
		byPhone:   make(map[string]int64),
		dedup:     make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) ListBranches(ctx context.Context) ([]models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Branch(nil), s.branches...), nil
}

func (s *InMemoryStore) AddBranch(ctx context.Context, b models.Branch) (models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = int64(len(s.branches) + 1)
	s.branches = append(s.branches, b)
	return b, nil
}

func (s *InMemoryStore) UpsertCustomer(ctx context.Context, phone, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPhone[phone]; ok {
		return id, nil
	}
	id := int64(len(s.customers) + 1)
	s.customers[id] = memCustomer{phone: phone, username: username}
	s.byPhone[phone] = id
	return id, nil
}

func (s *InMemoryStore) CustomerIDByPhone(ctx context.Context, phone string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return 0, models.ErrCustomerNotFound
	}
	return id, nil
}

func (s *InMemoryStore) PhoneByCustomerID(ctx context.Context, customerID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return "", models.ErrCustomerNotFound
	}
	return c.phone, nil
}

func (s *InMemoryStore) GetOrCreateConversation(ctx context.Context, customerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := len(s.conversations) - 1; i >= 0; i-- {
		c := &s.conversations[i]
		if c.customerID != customerID || !c.active {
			continue
		}
		if now.Sub(c.startedAt) < ConversationTTL {
			return c.id, nil
		}
		c.active = false
		break
	}
	id := int64(len(s.conversations) + 1)
	s.conversations = append(s.conversations, memConversation{id: id, customerID: customerID, active: true, startedAt: now})
	return id, nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, customerID, conversationID int64, text string, dir models.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, memMessage{conversationID: conversationID, text: text, dir: dir})
	return nil
}

func (s *InMemoryStore) GetHistory(ctx context.Context, conversationID int64, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range s.messages {
		if m.conversationID == conversationID && m.text != "" {
			out = append(out, models.ChatMessage{Role: m.dir.Role(), Content: m.text})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStore) InsertConfirmedOrder(ctx context.Context, o models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = int64(len(s.orders) + 1)
	o.Reference = uuid.NewString()
	o.Status = models.OrderStatusConfirmed
	o.CreatedAt = s.now()
	s.orders = append(s.orders, o)
	return o, nil
}

func (s *InMemoryStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && o.CreatedAt.Before(f.Since) {
			continue
		}
		if c, ok := s.customers[o.CustomerID]; ok {
			if o.Phone == nil {
				o.Phone = optional(c.phone)
			}
			if o.CustomerName == nil {
				o.CustomerName = optional(c.username)
			}
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	limit, offset := pageBounds(f)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID != orderID {
			continue
		}
		if err := models.ValidateTransition(s.orders[i].Status, status); err != nil {
			return err
		}
		s.orders[i].Status = status
		return nil
	}
	return models.ErrOrderNotFound
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, sender string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, Sender: sender, ReceivedAt: s.now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok {
		now := s.now()
		r.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
