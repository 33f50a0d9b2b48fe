// Package flow runs the customer conversation: it throttles and merges
// inbound messages, asks the language model for a reply, reconciles the
// order context and decides what to send back.
package flow

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/catalog"
	"github.com/AssadourKH/NEWAIBOT/internal/config"
	"github.com/AssadourKH/NEWAIBOT/internal/metrics"
	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/order"
	"github.com/AssadourKH/NEWAIBOT/internal/store"
)

// Completer produces the model reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Sender delivers outbound messages to a customer.
type Sender interface {
	SendText(ctx context.Context, to string, body string) error
	SendTemplate(ctx context.Context, to string, params []string) error
}

// ProcessedMarker records that an inbound message went through a turn.
type ProcessedMarker interface {
	MarkProcessed(messageID string) error
}

// Opts holds optional Processor collaborators.
type Opts struct {
	Contexts *order.ContextStore
	Throttle *Throttle
	Metrics  *metrics.Metrics
	Dedup    ProcessedMarker
	Now      func() time.Time
}

// Option configures a Processor.
type Option func(*Opts)

// WithContextStore shares an existing context store.
func WithContextStore(cs *order.ContextStore) Option {
	return func(o *Opts) { o.Contexts = cs }
}

// WithThrottle replaces the throttle built from the profile.
func WithThrottle(t *Throttle) Option {
	return func(o *Opts) { o.Throttle = t }
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithProcessedMarker marks merged message ids as processed after each turn.
func WithProcessedMarker(d ProcessedMarker) Option {
	return func(o *Opts) { o.Dedup = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Processor handles turns end to end.
type Processor struct {
	repo       store.Repository
	sender     Sender
	model      Completer
	catalog    *catalog.Holder
	profile    *config.Profile
	contexts   *order.ContextStore
	throttle   *Throttle
	metrics    *metrics.Metrics
	dedup      ProcessedMarker
	now        func() time.Time
	extractor  *order.Extractor
	reconciler *order.Reconciler
}

// NewProcessor wires a Processor. The catalog holder is consulted on every
// turn, so a reload takes effect immediately.
func NewProcessor(repo store.Repository, sender Sender, model Completer, cat *catalog.Holder, profile *config.Profile, opts ...Option) *Processor {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Contexts == nil {
		o.Contexts = order.NewContextStore()
	}
	if o.Throttle == nil {
		o.Throttle = NewThrottle(profile.Throttle, o.Now)
	}
	if cat == nil {
		cat = catalog.NewHolder(nil)
	}
	return &Processor{
		repo:       repo,
		sender:     sender,
		model:      model,
		catalog:    cat,
		profile:    profile,
		contexts:   o.Contexts,
		throttle:   o.Throttle,
		metrics:    o.Metrics,
		dedup:      o.Dedup,
		now:        o.Now,
		extractor:  order.NewExtractor(cat),
		reconciler: order.NewReconciler(cat),
	}
}

// Contexts exposes the live order contexts.
func (p *Processor) Contexts() *order.ContextStore {
	return p.contexts
}

// Throttle exposes the throttle so a scheduler can sweep it.
func (p *Processor) Throttle() *Throttle {
	return p.throttle
}

// contextKey keys the context store by customer id, or by phone when the
// customer could not be resolved.
func contextKey(customerID int64, phone string) string {
	if customerID > 0 {
		return strconv.FormatInt(customerID, 10)
	}
	return "phone:" + phone
}

func (p *Processor) markProcessed(ids []string) {
	if p.dedup == nil {
		return
	}
	for _, id := range ids {
		if err := p.dedup.MarkProcessed(id); err != nil {
			slog.Warn("flow.Processor.markProcessed: failed", "message_id", id, "error", err)
		}
	}
}
