// Package messaging delivers bot replies to customers and turns provider
// callbacks into normalized inbound messages.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an emit waits on a full channel before dropping
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest number accepted as a recipient.
	minPhoneDigits = 6
)

// ErrServiceStopped is returned by sends after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// SendText sends a plain conversational message.
	SendText(ctx context.Context, to string, body string) error

	// SendTemplate sends the order confirmation template with its body
	// parameters in order.
	SendTemplate(ctx context.Context, to string, params []string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and closes both channels.
	Stop() error

	// Receipts returns a channel of delivery events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of normalized customer messages.
	Responses() <-chan models.InboundMessage
}

// CanonicalizeRecipient strips everything but digits from a phone number and
// rejects results shorter than six digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug("messaging.CanonicalizeRecipient: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Deduper records provider message ids so redeliveries are dropped.
type Deduper interface {
	// RecordInbound returns false when messageID was seen before.
	RecordInbound(messageID, sender string) (bool, error)
}

// eventChannels carries the receipt and response channels shared by every
// Service implementation. Emits hold the read lock while sending so Stop
// never closes a channel under a pending send.
type eventChannels struct {
	name      string
	receipts  chan models.Receipt
	responses chan models.InboundMessage
	dedup     Deduper
	mu        sync.RWMutex
	stopped   bool
}

func newEventChannels(name string) *eventChannels {
	return &eventChannels{
		name:      name,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
}

// SetDeduper installs the redelivery filter. Call it before Start.
func (c *eventChannels) SetDeduper(d Deduper) {
	c.dedup = d
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// stop closes both channels once. It reports whether this call did the closing.
func (c *eventChannels) stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
	slog.Info(c.name+": stopped and channels closed")
	return true
}

// Receipts returns the channel of delivery events.
func (c *eventChannels) Receipts() <-chan models.Receipt {
	return c.receipts
}

// Responses returns the channel of normalized customer messages.
func (c *eventChannels) Responses() <-chan models.InboundMessage {
	return c.responses
}

func (c *eventChannels) emitReceipt(r models.Receipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return
	}
	select {
	case c.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+": receipts channel blocked, dropping receipt", "to", r.To, "status", r.Status)
	}
}

// seen reports whether m is a redelivery. Dedup failures let the message through.
func (c *eventChannels) seen(m models.InboundMessage) bool {
	if c.dedup == nil || m.ID == "" {
		return false
	}
	fresh, err := c.dedup.RecordInbound(m.ID, m.From)
	if err != nil {
		slog.Error(c.name+": dedup record failed", "error", err, "id", m.ID)
		return false
	}
	if !fresh {
		slog.Info(c.name+": dropping duplicate delivery", "id", m.ID, "from", m.From)
	}
	return !fresh
}

func (c *eventChannels) emitResponse(m models.InboundMessage) {
	if c.seen(m) {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn(c.name+": dropping inbound message (service stopped)", "from", m.From)
		return
	}
	select {
	case c.responses <- m:
		slog.Debug(c.name+": emitted inbound message", "from", m.From, "type", m.Type)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+": responses channel blocked, dropping message", "from", m.From, "timeout", DefaultChannelTimeout)
	}
}

func sentReceipt(to string) models.Receipt {
	return models.Receipt{To: to, Status: models.MessageStatusSent, Time: time.Now().Unix()}
}
