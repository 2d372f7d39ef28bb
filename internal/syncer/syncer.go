// Package syncer pushes workspace payloads to a remote sync endpoint with
// exponential-backoff retries, a circuit breaker, and a local degraded-mode
// fallback for when the endpoint stays unreachable.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

var (
	// ErrSyncFailed is returned after all retry attempts are exhausted.
	// The payload has been handed to the fallback when one is configured.
	ErrSyncFailed = errors.New("sync failed after retries")

	// ErrCircuitOpen is returned when the circuit breaker rejects the
	// call outright to stop hammering a dead endpoint.
	ErrCircuitOpen = errors.New("sync circuit breaker is open")
)

// Fallback persists a payload locally when remote sync is unavailable.
type Fallback func(ctx context.Context, payload []byte) error

// Config holds syncer configuration.
type Config struct {
	// Transport delivers payloads to the endpoint. Required.
	Transport Transport

	// Fallback, when set, receives the payload after retries are
	// exhausted so the update degrades to local-only persistence
	// instead of being lost.
	Fallback Fallback

	// MaxRetries is the number of retries after the first attempt
	// (default: 3).
	MaxRetries int

	// InitialDelay is the delay before the first retry; each subsequent
	// retry doubles it (default: 200ms).
	InitialDelay time.Duration

	// MaxDelay caps the per-retry delay (default: 5s).
	MaxDelay time.Duration

	// BreakerFailures is the number of consecutive Sync failures that
	// trip the circuit (default: 3).
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open before allowing
	// a probe (default: 30s).
	BreakerTimeout time.Duration

	// Clock defaults to the real clock; tests pass a fake clock.
	Clock clockwork.Clock
}

// Result reports what one Sync call did.
type Result struct {
	// Attempts is the total number of transport attempts made.
	Attempts int

	// FailedAttempts is how many of those attempts failed.
	FailedAttempts int

	// Delays holds the backoff delay taken before each retry.
	Delays []time.Duration

	// FallbackUsed reports whether the payload was persisted locally
	// after sync exhaustion.
	FallbackUsed bool
}

// Syncer is the retrying remote sync client.
type Syncer struct {
	transport    Transport
	fallback     Fallback
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	clock        clockwork.Clock
	breaker      *gobreaker.CircuitBreaker
}

// New creates a syncer with the given configuration.
func New(cfg Config) (*Syncer, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "SyncCircuitBreaker",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("syncer: circuit breaker %s -> %s", from, to)
		},
	})

	return &Syncer{
		transport:    cfg.Transport,
		fallback:     cfg.Fallback,
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		clock:        cfg.Clock,
		breaker:      breaker,
	}, nil
}

// Sync delivers payload to the endpoint, retrying with doubling delays up
// to the configured cap. The whole call counts as one unit for the circuit
// breaker: a Sync that exhausts its retries is one breaker failure.
//
// After exhaustion the fallback (if any) is attempted before the error is
// surfaced, so the caller still learns the remote write failed but the
// payload is already safe locally.
func (s *Syncer) Sync(ctx context.Context, payload []byte) (*Result, error) {
	result := &Result{}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.attemptWithRetries(ctx, payload, result)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return result, err
	}

	if s.fallback != nil {
		if ferr := s.fallback(ctx, payload); ferr != nil {
			log.Printf("syncer: degraded-mode fallback failed: %v", ferr)
		} else {
			result.FallbackUsed = true
			log.Printf("syncer: payload persisted locally after sync failure")
		}
	}

	if errors.Is(err, ErrCircuitOpen) {
		return result, err
	}
	return result, fmt.Errorf("%w: %v", ErrSyncFailed, err)
}

func (s *Syncer) attemptWithRetries(ctx context.Context, payload []byte, result *Result) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = s.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts++
		if err := s.transport.Send(ctx, payload); err == nil {
			return nil
		} else {
			lastErr = err
			result.FailedAttempts++
			log.Printf("syncer: attempt %d failed: %v", result.Attempts, err)
		}

		if attempt == s.maxRetries {
			break
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		result.Delays = append(result.Delays, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}

	return lastErr
}
