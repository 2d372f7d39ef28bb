// Package store defines the composable storage interfaces for the snapvault
// durability layer.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Backends exist for
// SQLite (embedded, the default) and PostgreSQL; the crash flag additionally
// has a plain-file backend that is readable before any database is opened.
package store

import (
	"context"
	"time"

	"github.com/scrypster/snapvault/pkg/types"
)

// SnapshotStore persists versioned, checksummed snapshots for one backup
// stream. Snapshots are ordered by creation time; version numbers are
// strictly increasing, assigned by the store at creation.
type SnapshotStore interface {
	// Create allocates an ID, stamps the current time, assigns the next
	// version in the stream, computes the payload checksum, and persists
	// the snapshot. Storage failures are wrapped in ErrStorage.
	Create(ctx context.Context, payload []byte) (*types.Snapshot, error)

	// List returns all snapshots, most recent first by creation time.
	List(ctx context.Context) ([]*types.Snapshot, error)

	// DeleteByID removes a snapshot. Deleting an absent ID is a no-op.
	DeleteByID(ctx context.Context, id string) error

	// Prune deletes all but the maxCount newest snapshots and returns the
	// number deleted. The most recently created snapshot is never deleted
	// for any maxCount >= 1.
	Prune(ctx context.Context, maxCount int) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// FlagStore persists small named string flags that survive process
// restarts. Used for the crash flag; implementations must be readable
// before the main snapshot store is opened.
type FlagStore interface {
	// Set stores a flag value, overwriting any previous value.
	Set(name, value string) error

	// Get returns the flag value, or ErrNotFound if the flag is absent.
	Get(name string) (string, error)

	// Remove deletes the flag. Removing an absent flag is a no-op.
	Remove(name string) error
}

// LeaseStore persists the single-writer stream lease. A lease names an
// owner and an expiry; an expired lease is treated as released.
type LeaseStore interface {
	// AcquireLease takes the lease for owner until now+ttl. Returns
	// ErrLeaseHeld when a different owner holds an unexpired lease.
	// Re-acquiring by the current owner extends the expiry.
	AcquireLease(ctx context.Context, owner string, ttl time.Duration) error

	// ReleaseLease gives up the lease if held by owner. Releasing a lease
	// that is not held is a no-op.
	ReleaseLease(ctx context.Context, owner string) error

	// LeaseOwner returns the current unexpired lease owner, or "" when
	// the lease is free.
	LeaseOwner(ctx context.Context) (string, error)
}
