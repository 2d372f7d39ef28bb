package coalesce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// SyncFunc is the downstream call a throttled burst is capped into.
type SyncFunc func(payload any)

// Throttler caps calls to at most one per window. A call suppressed by the
// window replaces any previously suppressed payload and fires once when
// the window reopens (trailing flush), so intermediate payloads are merged
// away but the last one always goes out.
type Throttler struct {
	fn     SyncFunc
	window time.Duration
	clock  clockwork.Clock

	mu         sync.Mutex
	limiter    *rate.Limiter
	pending    any
	hasPending bool
	trailing   clockwork.Timer
}

// NewThrottler creates a throttler with the given window. A nil clock
// defaults to real time.
func NewThrottler(fn SyncFunc, window time.Duration, clock clockwork.Clock) *Throttler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Throttler{
		fn:     fn,
		window: window,
		clock:  clock,
		// Burst of 1: a single token refilled once per window.
		limiter: rate.NewLimiter(rate.Every(window), 1),
	}
}

// Call forwards payload downstream if the window allows it, otherwise
// stores it as the pending trailing payload.
func (t *Throttler) Call(payload any) {
	t.mu.Lock()
	if t.limiter.AllowN(t.clock.Now(), 1) {
		// A payload delivered now supersedes any older one still waiting
		// for the trailing flush; firing that one later would put stale
		// state on the wire after newer state.
		if t.hasPending {
			t.trailing.Stop()
			t.hasPending = false
			t.pending = nil
		}
		t.mu.Unlock()
		t.fn(payload)
		return
	}

	t.pending = payload
	if !t.hasPending {
		t.hasPending = true
		t.trailing = t.clock.AfterFunc(t.window, t.flush)
	}
	t.mu.Unlock()
}

// Stop cancels any pending trailing flush without firing it.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trailing != nil {
		t.trailing.Stop()
	}
	t.hasPending = false
	t.pending = nil
}

func (t *Throttler) flush() {
	t.mu.Lock()
	if !t.hasPending {
		t.mu.Unlock()
		return
	}
	payload := t.pending
	t.hasPending = false
	t.pending = nil
	t.limiter.AllowN(t.clock.Now(), 1)
	t.mu.Unlock()

	t.fn(payload)
}
