// Package vault is the embedding API for the snapvault durability layer.
// It wires the snapshot store, crash tracking, recovery, the auto-backup
// scheduler, content caching, and remote sync into one handle with a
// defined startup and shutdown order:
//
//	crash flag read -> store open -> lease acquire -> flag set -> services
//
// The crash flag is read from plain files before any database is opened,
// so a corrupt store cannot mask an unclean shutdown.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrypster/snapvault/internal/cache"
	"github.com/scrypster/snapvault/internal/coalesce"
	"github.com/scrypster/snapvault/internal/config"
	"github.com/scrypster/snapvault/internal/lease"
	"github.com/scrypster/snapvault/internal/notify"
	"github.com/scrypster/snapvault/internal/recovery"
	"github.com/scrypster/snapvault/internal/scheduler"
	"github.com/scrypster/snapvault/internal/store"
	"github.com/scrypster/snapvault/internal/store/flagfile"
	"github.com/scrypster/snapvault/internal/store/postgres"
	"github.com/scrypster/snapvault/internal/store/sqlite"
	"github.com/scrypster/snapvault/internal/syncer"
	"github.com/scrypster/snapvault/pkg/types"
)

// ErrSyncNotConfigured is returned by Sync when no endpoint is set.
var ErrSyncNotConfigured = errors.New("no sync endpoint configured")

// Backend is what a storage engine must provide: the snapshot stream plus
// its single-writer lease, backed by the same database.
type Backend interface {
	store.SnapshotStore
	store.LeaseStore
}

// Vault is one open durability session over one backup stream.
type Vault struct {
	cfg     *config.Config
	clock   clockwork.Clock
	backend Backend
	flags   store.FlagStore
	tracker *recovery.CrashTracker
	session *types.SessionState
	engine  *recovery.Engine
	keeper  *lease.Keeper
	events  *notify.EventWriter
	sched   *scheduler.Scheduler
	cache   *cache.TTLCache

	syncer      *syncer.Syncer
	wsTransport *syncer.WSTransport
}

// Open initializes the durability layer from configuration. It returns
// store.ErrLeaseHeld when another live writer already owns the stream.
func Open(ctx context.Context, cfg *config.Config) (*Vault, error) {
	return OpenWithClock(ctx, cfg, clockwork.NewRealClock())
}

// OpenWithClock is Open with an injected clock for tests.
func OpenWithClock(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Vault, error) {
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// The crash flag must be readable before the database opens: a store
	// too corrupt to open is exactly the case the flag exists for.
	flags := flagfile.New(cfg.Storage.DataPath)
	tracker := recovery.NewCrashTracker(flags)
	crashed, err := tracker.WasPriorSessionUnclean()
	if err != nil {
		return nil, err
	}
	if crashed {
		log.Println("vault: prior session ended uncleanly, recovery recommended")
	}

	backend, err := openBackend(cfg, clock)
	if err != nil {
		return nil, err
	}

	keeper := lease.New(backend, cfg.Backup.LeaseTTL)
	if err := keeper.Acquire(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to acquire stream lease: %w", err)
	}

	if err := tracker.MarkSessionActive(); err != nil {
		_ = keeper.Release(ctx)
		_ = backend.Close()
		return nil, err
	}

	// On a failed Open the flag is only cleared if this call set it on a
	// clean slate; evidence of a prior unclean shutdown must survive until
	// a successfully opened vault closes gracefully.
	cleanup := func() {
		if !crashed {
			if err := tracker.ClearFlag(); err != nil {
				log.Printf("vault: warning: failed to clear crash flag during cleanup: %v", err)
			}
		}
		_ = keeper.Release(ctx)
		_ = backend.Close()
	}

	v := &Vault{
		cfg:     cfg,
		clock:   clock,
		backend: backend,
		flags:   flags,
		tracker: tracker,
		session: types.NewSessionState(crashed),
		engine:  recovery.NewEngine(backend),
		keeper:  keeper,
		events:  notify.NewEventWriter(cfg.Storage.DataPath),
		cache:   cache.New(clock),
	}

	v.sched, err = scheduler.New(scheduler.Config{
		Snapshots:    backend,
		Session:      v.session,
		Lease:        keeper,
		Events:       v.events,
		Clock:        clock,
		Interval:     cfg.Backup.Interval,
		MaxSnapshots: cfg.Backup.MaxSnapshots,
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	if cfg.Sync.Endpoint != "" {
		if err := v.initSyncer(); err != nil {
			cleanup()
			return nil, err
		}
	}

	return v, nil
}

func openBackend(cfg *config.Config, clock clockwork.Clock) (Backend, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN, clock)
	default:
		dsn := filepath.Join(cfg.Storage.DataPath, "snapvault.db")
		return sqlite.New(dsn, clock)
	}
}

func (v *Vault) initSyncer() error {
	var transport syncer.Transport
	switch v.cfg.Sync.Transport {
	case "ws":
		ws := syncer.NewWSTransport(v.cfg.Sync.Endpoint)
		v.wsTransport = ws
		transport = ws
	case "http", "":
		transport = syncer.NewHTTPTransport(v.cfg.Sync.Endpoint, &http.Client{Timeout: 10 * time.Second})
	default:
		return fmt.Errorf("unknown sync transport %q", v.cfg.Sync.Transport)
	}

	// When the endpoint stays unreachable, the payload degrades to a
	// local snapshot instead of being lost.
	fallback := func(ctx context.Context, payload []byte) error {
		_, err := v.backend.Create(ctx, payload)
		return err
	}

	s, err := syncer.New(syncer.Config{
		Transport:    transport,
		Fallback:     fallback,
		MaxRetries:   v.cfg.Sync.MaxRetries,
		InitialDelay: v.cfg.Sync.InitialDelay,
		Clock:        v.clock,
	})
	if err != nil {
		return err
	}
	v.syncer = s
	return nil
}

// Session returns the per-session recovery bookkeeping.
func (v *Vault) Session() *types.SessionState { return v.session }

// Store returns the underlying snapshot store.
func (v *Vault) Store() store.SnapshotStore { return v.backend }

// Cache returns the TTL content cache.
func (v *Vault) Cache() *cache.TTLCache { return v.cache }

// RecoverIfNeeded runs the recovery cascade only when the prior session
// ended uncleanly. A clean prior shutdown returns (nil, nil).
func (v *Vault) RecoverIfNeeded(ctx context.Context) (*recovery.Result, error) {
	if !v.session.PriorSessionCrashed() {
		return nil, nil
	}
	return v.Recover(ctx)
}

// Recover restores the newest usable snapshot regardless of how the prior
// session ended. See recovery.Engine.Recover for the cascade semantics.
func (v *Vault) Recover(ctx context.Context) (*recovery.Result, error) {
	result, err := v.engine.Recover(ctx)
	if err != nil || result == nil {
		return result, err
	}
	if nerr := v.events.Notify(notify.Event{
		Type:       notify.EventRecoveryPerformed,
		SnapshotID: result.Snapshot.ID,
		Version:    result.Snapshot.Version,
	}); nerr != nil {
		log.Printf("vault: warning: failed to emit recovery event: %v", nerr)
	}
	return result, nil
}

// StartAutoBackup begins the periodic backup loop, pulling state from the
// given producer on every tick. No-op restart safe.
func (v *Vault) StartAutoBackup(producer scheduler.Producer) {
	if !v.cfg.Backup.Enabled {
		log.Println("vault: auto-backup disabled by configuration")
		return
	}
	v.sched.Start(producer)
}

// BackupNow performs an immediate backup outside the timer.
func (v *Vault) BackupNow(ctx context.Context, producer scheduler.Producer) (*types.Snapshot, error) {
	return v.sched.BackupNow(ctx, producer)
}

// Health reports scheduler and store health.
func (v *Vault) Health(ctx context.Context) (*scheduler.HealthStatus, error) {
	return v.sched.Health(ctx)
}

// Sync pushes a payload to the configured remote endpoint with retries.
func (v *Vault) Sync(ctx context.Context, payload []byte) (*syncer.Result, error) {
	if v.syncer == nil {
		return nil, ErrSyncNotConfigured
	}
	return v.syncer.Sync(ctx, payload)
}

// NewSaveDebouncer coalesces bursts of edit notifications into one save
// per quiet period, using the configured debounce window.
func (v *Vault) NewSaveDebouncer(fn coalesce.SaveFunc) *coalesce.Debouncer {
	return coalesce.NewDebouncer(fn, v.cfg.Tuning.DebounceQuiet, v.clock)
}

// NewSyncThrottler rate-limits outbound sync pushes to the configured
// window, always delivering the latest payload of a burst.
func (v *Vault) NewSyncThrottler() *coalesce.Throttler {
	return coalesce.NewThrottler(func(payload any) {
		data, ok := payload.([]byte)
		if !ok {
			log.Printf("vault: dropping sync payload of unexpected type %T", payload)
			return
		}
		if _, err := v.Sync(context.Background(), data); err != nil {
			log.Printf("vault: throttled sync failed: %v", err)
		}
	}, v.cfg.Sync.ThrottleWindow, v.clock)
}

// Close shuts the session down cleanly: stop the backup loop, clear the
// crash flag, release the lease, and close the store. Clearing the flag
// is what marks this shutdown as graceful for the next startup.
func (v *Vault) Close(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if v.sched != nil {
		v.sched.Stop()
	}
	record(v.tracker.ClearFlag())
	record(v.keeper.Release(ctx))
	if v.wsTransport != nil {
		record(v.wsTransport.Close())
	}
	record(v.backend.Close())
	return firstErr
}
