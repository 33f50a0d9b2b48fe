package flow

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/AssadourKH/NEWAIBOT/internal/config"
)

// Throttle drops repeated or rapid-fire messages from one customer.
//
// A message is dropped when it repeats the previous accepted text within
// SameTextWindow, or when it is at most ShortTextMaxLen characters long and
// arrives within ShortTextWindow of the previous accepted message. Dropped
// messages do not move the window.
type Throttle struct {
	cfg  config.Throttle
	now  func() time.Time
	mu   sync.Mutex
	last map[string]lastMessage
}

type lastMessage struct {
	text string
	at   time.Time
}

// NewThrottle creates a throttle. A nil clock means time.Now.
func NewThrottle(cfg config.Throttle, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{cfg: cfg, now: now, last: make(map[string]lastMessage)}
}

// Allow reports whether text from key should be processed and, if so,
// records it as the latest accepted message.
func (t *Throttle) Allow(key, text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[key]; ok {
		elapsed := now.Sub(prev.at)
		short := utf8.RuneCountInString(normalized) <= t.cfg.ShortTextMaxLen
		if (normalized == prev.text && elapsed < t.cfg.SameTextWindow) || (short && elapsed < t.cfg.ShortTextWindow) {
			slog.Info("flow.Throttle: message throttled", "key", key, "elapsed", elapsed, "text_length", len(normalized))
			return false
		}
	}
	t.last[key] = lastMessage{text: normalized, at: now}
	return true
}

// Sweep forgets customers whose last message is older than both windows and
// returns how many were removed.
func (t *Throttle) Sweep() int {
	horizon := t.cfg.SameTextWindow
	if t.cfg.ShortTextWindow > horizon {
		horizon = t.cfg.ShortTextWindow
	}
	cutoff := t.now().Add(-horizon)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, m := range t.last {
		if m.at.Before(cutoff) {
			delete(t.last, key)
			removed++
		}
	}
	return removed
}

// Len reports how many customers are tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
