package flow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Turn is one unit of work for the Processor: a customer message, possibly
// merged from several inbound messages sent in quick succession.
type Turn struct {
	Message models.InboundMessage
	// MessageIDs are the provider ids of every message merged into Message.
	MessageIDs []string
}

// TurnHandler processes a turn.
type TurnHandler func(ctx context.Context, turn Turn)

// MergeBuffer groups bursts of messages from one sender into a single turn.
//
// A message arriving more than window after the sender's previous message is
// handled immediately. Messages arriving within window of the previous one
// are buffered, and the buffer is handled as one turn (texts joined with
// spaces) once the sender has been quiet for window. Button clicks are never
// buffered; any buffered text is handled first.
type MergeBuffer struct {
	ctx    context.Context
	window time.Duration
	handle TurnHandler

	mu      sync.Mutex
	senders map[string]*senderBuffer
	closed  bool
	wg      sync.WaitGroup
}

type senderBuffer struct {
	first models.InboundMessage
	parts []string
	ids   []string
	last  time.Time
	timer *time.Timer
}

// NewMergeBuffer creates a buffer that hands turns to handle. ctx is passed
// to every handler call.
func NewMergeBuffer(ctx context.Context, window time.Duration, handle TurnHandler) *MergeBuffer {
	return &MergeBuffer{
		ctx:     ctx,
		window:  window,
		handle:  handle,
		senders: make(map[string]*senderBuffer),
	}
}

// Add accepts one inbound message.
func (b *MergeBuffer) Add(msg models.InboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		slog.Debug("flow.MergeBuffer.Add: buffer closed, dropping message", "from", msg.From)
		return
	}
	now := time.Now()

	if b.window <= 0 {
		b.dispatch(singleTurn(msg))
		return
	}

	sb, ok := b.senders[msg.From]
	if msg.IsButton() {
		var turns []Turn
		if ok {
			sb.timer.Stop()
			delete(b.senders, msg.From)
			if t, pending := sb.turn(); pending {
				turns = append(turns, t)
			}
		}
		b.dispatch(append(turns, singleTurn(msg))...)
		return
	}

	if ok && now.Sub(sb.last) < b.window {
		if len(sb.parts) == 0 {
			sb.first = msg
		}
		sb.parts = append(sb.parts, msg.Text)
		sb.ids = appendID(sb.ids, msg.ID)
		sb.last = now
		sb.timer.Reset(b.window)
		slog.Debug("flow.MergeBuffer.Add: buffered message", "from", msg.From, "buffered", len(sb.parts))
		return
	}

	if ok {
		sb.timer.Stop()
		delete(b.senders, msg.From)
	}
	b.dispatch(singleTurn(msg))
	sb = &senderBuffer{last: now}
	sb.timer = time.AfterFunc(b.window, func() { b.flush(msg.From, sb) })
	b.senders[msg.From] = sb
}

// flush runs when a sender has been quiet for the window.
func (b *MergeBuffer) flush(from string, sb *senderBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.senders[from] != sb {
		return
	}
	delete(b.senders, from)
	if t, pending := sb.turn(); pending {
		slog.Debug("flow.MergeBuffer.flush: merged burst", "from", from, "messages", len(sb.parts))
		b.dispatch(t)
	}
}

// dispatch runs turns sequentially on a new goroutine. Callers hold b.mu.
func (b *MergeBuffer) dispatch(turns ...Turn) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, t := range turns {
			b.handle(b.ctx, t)
		}
	}()
}

// Close stops all timers, discards buffered messages and waits for running
// handlers to return.
func (b *MergeBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	for from, sb := range b.senders {
		sb.timer.Stop()
		if len(sb.parts) > 0 {
			slog.Warn("flow.MergeBuffer.Close: discarding buffered messages", "from", from, "messages", len(sb.parts))
		}
		delete(b.senders, from)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (sb *senderBuffer) turn() (Turn, bool) {
	if len(sb.parts) == 0 {
		return Turn{}, false
	}
	msg := sb.first
	msg.Text = strings.TrimSpace(strings.Join(sb.parts, " "))
	return Turn{Message: msg, MessageIDs: sb.ids}, true
}

func singleTurn(msg models.InboundMessage) Turn {
	return Turn{Message: msg, MessageIDs: appendID(nil, msg.ID)}
}

func appendID(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	return append(ids, id)
}
