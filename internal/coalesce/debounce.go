// Package coalesce reduces bursts of change notifications to fewer
// downstream effects: a debouncer for persistence (fire once after a quiet
// period, latest content wins) and a throttler for sync (at most one call
// per window, with a trailing flush so the final state is never dropped).
package coalesce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SaveFunc is the downstream persistence call a debounced burst collapses
// into.
type SaveFunc func(fileID, content string)

// Debouncer collapses rapid content-changed events into a single save.
// Each notification restarts the quiet-period timer; only the latest
// fileID/content pair in the burst is ever persisted.
type Debouncer struct {
	fn    SaveFunc
	quiet time.Duration
	clock clockwork.Clock

	mu             sync.Mutex
	timer          clockwork.Timer
	pendingID      string
	pendingContent string
	hasPending     bool
}

// NewDebouncer creates a debouncer that invokes fn once no notification
// has arrived for the quiet duration. A nil clock defaults to real time.
func NewDebouncer(fn SaveFunc, quiet time.Duration, clock clockwork.Clock) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{fn: fn, quiet: quiet, clock: clock}
}

// Notify records a content change and restarts the quiet-period timer.
func (d *Debouncer) Notify(fileID, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pendingID = fileID
	d.pendingContent = content
	d.hasPending = true

	if d.timer == nil {
		d.timer = d.clock.AfterFunc(d.quiet, d.fire)
		return
	}
	d.timer.Reset(d.quiet)
}

// Flush fires the pending save immediately, if any. Used on shutdown so a
// burst in progress is not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop cancels any pending save without firing it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.hasPending = false
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.hasPending {
		d.mu.Unlock()
		return
	}
	id, content := d.pendingID, d.pendingContent
	d.hasPending = false
	d.mu.Unlock()

	d.fn(id, content)
}
