package flow

import (
	"testing"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testThrottleConfig() config.Throttle {
	return config.Throttle{SameTextWindow: 10 * time.Second, ShortTextWindow: 4 * time.Second, ShortTextMaxLen: 10}
}

func TestThrottleAllow(t *testing.T) {
	tests := []struct {
		name  string
		first string
		gap   time.Duration
		next  string
		want  bool
	}{
		{"same text within window", "I want two burgers", 5 * time.Second, "i want two BURGERS ", false},
		{"same text after window", "I want two burgers", 11 * time.Second, "I want two burgers", true},
		{"short text within short window", "I want two burgers", 3 * time.Second, "ok", false},
		{"short text after short window", "I want two burgers", 5 * time.Second, "ok", true},
		{"long different text", "I want two burgers", time.Second, "Also add a large fries please", true},
		{"ten characters counts as short", "hello there friend", time.Second, "abcdefghij", false},
		{"eleven characters is long", "hello there friend", time.Second, "abcdefghijk", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
			th := NewThrottle(testThrottleConfig(), clock.Now)
			if !th.Allow("42", tt.first) {
				t.Fatalf("first message must be allowed")
			}
			clock.Advance(tt.gap)
			if got := th.Allow("42", tt.next); got != tt.want {
				t.Errorf("Allow(%q) after %v = %v, want %v", tt.next, tt.gap, got, tt.want)
			}
		})
	}
}

func TestThrottleDroppedMessageDoesNotMoveWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(testThrottleConfig(), clock.Now)

	th.Allow("42", "two shawarma please")
	clock.Advance(3 * time.Second)
	if th.Allow("42", "yes") {
		t.Fatal("short follow-up should be throttled")
	}
	clock.Advance(2 * time.Second)
	// 5s since the last accepted message, 2s since the dropped one.
	if !th.Allow("42", "yes") {
		t.Fatal("window must be measured from the last accepted message")
	}
}

func TestThrottleCustomersAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(testThrottleConfig(), clock.Now)
	th.Allow("1", "hi")
	if !th.Allow("2", "hi") {
		t.Fatal("other customer should not be throttled")
	}
}

func TestThrottleSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(testThrottleConfig(), clock.Now)
	th.Allow("old", "first message")
	clock.Advance(8 * time.Second)
	th.Allow("new", "second message")
	clock.Advance(3 * time.Second)

	if removed := th.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if th.Len() != 1 {
		t.Fatalf("Len = %d, want 1", th.Len())
	}
}
