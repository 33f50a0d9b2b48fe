package order

import (
	"sync"
	"sync/atomic"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// ContextStore holds the live order context of every customer.
//
// Access is serialized per customer: Update holds the customer's lock for the
// whole read-modify-write, so two turns for the same customer never interleave
// while different customers proceed in parallel.
type ContextStore struct {
	mu      sync.Mutex
	entries map[string]*contextEntry
	live    atomic.Int64
}

type contextEntry struct {
	mu   sync.Mutex
	ctx  *models.OrderContext
	refs int
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{entries: make(map[string]*contextEntry)}
}

// Update runs fn with exclusive access to the customer's context. cur is nil
// when the customer has no context. The returned pointer becomes the stored
// context; returning nil evicts it. fn may mutate cur in place and return it.
func (s *ContextStore) Update(customerID string, fn func(cur *models.OrderContext) *models.OrderContext) {
	e := s.acquire(customerID)
	defer s.release(customerID, e)

	had := e.ctx != nil
	e.ctx = fn(e.ctx)
	switch has := e.ctx != nil; {
	case has && !had:
		s.live.Add(1)
	case !has && had:
		s.live.Add(-1)
	}
}

// Get returns a copy of the customer's context.
func (s *ContextStore) Get(customerID string) (models.OrderContext, bool) {
	var out models.OrderContext
	var ok bool
	s.Update(customerID, func(cur *models.OrderContext) *models.OrderContext {
		if cur != nil {
			out, ok = cur.Clone(), true
		}
		return cur
	})
	return out, ok
}

// Put replaces the customer's context with a copy of c.
func (s *ContextStore) Put(customerID string, c models.OrderContext) {
	cp := c.Clone()
	s.Update(customerID, func(*models.OrderContext) *models.OrderContext { return &cp })
}

// Delete evicts the customer's context.
func (s *ContextStore) Delete(customerID string) {
	s.Update(customerID, func(*models.OrderContext) *models.OrderContext { return nil })
}

// Len reports how many customers have a live context.
func (s *ContextStore) Len() int {
	return int(s.live.Load())
}

func (s *ContextStore) acquire(id string) *contextEntry {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &contextEntry{}
		s.entries[id] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return e
}

func (s *ContextStore) release(id string, e *contextEntry) {
	e.mu.Unlock()

	s.mu.Lock()
	e.refs--
	// With no other holders nobody can touch e.ctx until s.mu is released.
	if e.refs == 0 && e.ctx == nil {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}
