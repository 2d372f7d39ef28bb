package coalesce

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type syncRecorder struct {
	mu    sync.Mutex
	calls []any
}

func (r *syncRecorder) sync(payload any) {
	r.mu.Lock()
	r.calls = append(r.calls, payload)
	r.mu.Unlock()
}

func (r *syncRecorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.calls...)
}

// waitForCalls polls until the recorder has n calls; trailing flushes run
// on a timer goroutine, so a short real-time wait is needed after Advance.
func waitForCalls(t *testing.T, rec *syncRecorder, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: expected %d calls, got %d", n, len(rec.snapshot()))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFirstCallPassesThrough(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &syncRecorder{}
	th := NewThrottler(rec.sync, 100*time.Millisecond, clock)

	th.Call("v1")

	assert.Equal(t, []any{"v1"}, rec.snapshot())
}

func TestBurstMergesToTrailingCall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &syncRecorder{}
	th := NewThrottler(rec.sync, 100*time.Millisecond, clock)

	th.Call("v1") // passes immediately
	th.Call("v2") // suppressed
	th.Call("v3") // suppressed, replaces v2
	th.Call("v4") // suppressed, replaces v3

	assert.Equal(t, []any{"v1"}, rec.snapshot())

	clock.Advance(100 * time.Millisecond)
	waitForCalls(t, rec, 2)

	// Exactly one trailing call, carrying the last payload of the burst.
	assert.Equal(t, []any{"v1", "v4"}, rec.snapshot())
}

func TestCallsInSeparateWindowsBothPass(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &syncRecorder{}
	th := NewThrottler(rec.sync, 100*time.Millisecond, clock)

	th.Call("v1")
	clock.Advance(150 * time.Millisecond)
	th.Call("v2")

	assert.Equal(t, []any{"v1", "v2"}, rec.snapshot())
}

func TestDirectCallSupersedesPendingTrailing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &syncRecorder{}
	th := NewThrottler(rec.sync, 100*time.Millisecond, clock)

	th.Call("v1") // passes immediately
	clock.Advance(10 * time.Millisecond)
	th.Call("v2") // suppressed, trailing flush scheduled for t=110ms

	// The window reopens at t=100ms, before the trailing flush fires.
	clock.Advance(90 * time.Millisecond)
	th.Call("v3")

	assert.Equal(t, []any{"v1", "v3"}, rec.snapshot())

	// The stale v2 must not arrive after v3.
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []any{"v1", "v3"}, rec.snapshot())
}

func TestStopDiscardsPendingTrailingCall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &syncRecorder{}
	th := NewThrottler(rec.sync, 100*time.Millisecond, clock)

	th.Call("v1")
	th.Call("v2")
	th.Stop()

	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []any{"v1"}, rec.snapshot())
}
