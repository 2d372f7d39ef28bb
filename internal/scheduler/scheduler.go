// Package scheduler runs periodic automated backups: it pulls workspace
// state from a caller-supplied producer, persists it as a new snapshot,
// and applies the retention policy after each successful write.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrypster/snapvault/internal/lease"
	"github.com/scrypster/snapvault/internal/notify"
	"github.com/scrypster/snapvault/internal/store"
	"github.com/scrypster/snapvault/pkg/types"
)

// Producer supplies the current workspace state for a backup tick.
type Producer func(ctx context.Context) (*types.WorkspaceState, error)

// Config holds scheduler configuration.
type Config struct {
	// Snapshots is the backup store to write to. Required.
	Snapshots store.SnapshotStore

	// Session is the per-session recovery bookkeeping to update after
	// each successful backup. Required.
	Session *types.SessionState

	// Lease, when set, is renewed before every backup; a tick whose
	// renewal fails is skipped rather than risking a version race with
	// another writer.
	Lease *lease.Keeper

	// Events, when set, receives backup lifecycle notifications.
	Events *notify.EventWriter

	// Clock defaults to the real clock; tests pass a fake clock.
	Clock clockwork.Clock

	// Interval is the duration between automated backups (default: 30s).
	Interval time.Duration

	// MaxSnapshots is the retention bound applied after each backup
	// (default: 10).
	MaxSnapshots int
}

// Scheduler is the automated backup loop. One scheduler instance owns one
// backup stream; Start is an idempotent restart, so two timers never run
// concurrently for the same instance.
type Scheduler struct {
	snapshots    store.SnapshotStore
	session      *types.SessionState
	leaseKeeper  *lease.Keeper
	events       *notify.EventWriter
	clock        clockwork.Clock
	interval     time.Duration
	maxSnapshots int

	mu             sync.Mutex
	running        bool
	stopCh         chan struct{}
	done           chan struct{}
	lastBackupTime time.Time
	nextBackupTime time.Time
}

// New creates a scheduler with the given configuration.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session state is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = 10
	}

	return &Scheduler{
		snapshots:    cfg.Snapshots,
		session:      cfg.Session,
		leaseKeeper:  cfg.Lease,
		events:       cfg.Events,
		clock:        cfg.Clock,
		interval:     cfg.Interval,
		maxSnapshots: cfg.MaxSnapshots,
	}, nil
}

// Start begins the recurring backup timer. If the scheduler is already
// running, the previous timer is stopped first.
func (s *Scheduler) Start(producer Producer) {
	s.Stop()

	s.mu.Lock()
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.nextBackupTime = s.clock.Now().Add(s.interval)
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go s.loop(producer, stopCh, done)
	log.Printf("scheduler: started, interval=%v, retention=%d snapshots", s.interval, s.maxSnapshots)
}

// Stop cancels the timer and waits for the loop to exit. A backup already
// dispatched finishes; it is simply not followed by new ticks. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stopCh)
	<-done
	log.Println("scheduler: stopped")
}

func (s *Scheduler) loop(producer Producer, stopCh, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			// A failed backup does not stop the timer; the next tick
			// retries naturally.
			if snap, err := s.BackupNow(context.Background(), producer); err != nil {
				log.Printf("scheduler: scheduled backup failed: %v", err)
			} else {
				log.Printf("scheduler: backup completed, id=%s version=%d size=%d bytes",
					snap.ID, snap.Version, len(snap.Payload))
			}

			s.mu.Lock()
			s.nextBackupTime = s.clock.Now().Add(s.interval)
			s.mu.Unlock()
		}
	}
}

// BackupNow performs an immediate backup: renew the lease, pull state from
// the producer, persist it, update session bookkeeping, and prune.
func (s *Scheduler) BackupNow(ctx context.Context, producer Producer) (*types.Snapshot, error) {
	if s.leaseKeeper != nil {
		if err := s.leaseKeeper.Renew(ctx); err != nil {
			s.notifyFailure(err)
			return nil, fmt.Errorf("lease renewal failed, skipping backup: %w", err)
		}
	}

	state, err := producer(ctx)
	if err != nil {
		s.notifyFailure(err)
		return nil, fmt.Errorf("state producer failed: %w", err)
	}

	payload, err := state.Encode()
	if err != nil {
		s.notifyFailure(err)
		return nil, err
	}

	snap, err := s.snapshots.Create(ctx, payload)
	if err != nil {
		s.notifyFailure(err)
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	s.session.MarkSaved(snap.CreatedAt)

	s.mu.Lock()
	s.lastBackupTime = snap.CreatedAt
	s.mu.Unlock()

	// Retention errors never fail the backup that triggered them.
	if _, err := s.snapshots.Prune(ctx, s.maxSnapshots); err != nil {
		log.Printf("scheduler: warning: failed to apply retention: %v", err)
	}

	if s.events != nil {
		if err := s.events.Notify(notify.Event{
			Type:       notify.EventBackupCompleted,
			SnapshotID: snap.ID,
			Version:    snap.Version,
		}); err != nil {
			log.Printf("scheduler: warning: failed to emit backup event: %v", err)
		}
	}

	return snap, nil
}

func (s *Scheduler) notifyFailure(cause error) {
	if s.events == nil {
		return
	}
	if err := s.events.Notify(notify.Event{
		Type:   notify.EventBackupFailed,
		Detail: cause.Error(),
	}); err != nil {
		log.Printf("scheduler: warning: failed to emit failure event: %v", err)
	}
}
