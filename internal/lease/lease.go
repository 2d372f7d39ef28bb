// Package lease enforces the single-writer precondition on a backup
// stream. Concurrent writers against the same store (a second app instance,
// a maintenance CLI run) race on version numbering; the lease makes the
// conflict explicit instead of silent.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/snapvault/internal/store"
)

// DefaultTTL bounds how long a dead writer can block a new one.
const DefaultTTL = 2 * time.Minute

// Keeper holds the stream lease on behalf of one writer. The owner ID is
// minted per Keeper, so two Keepers never look like the same writer.
type Keeper struct {
	leases store.LeaseStore
	owner  string
	ttl    time.Duration
}

// New creates a lease keeper over the given lease store. A non-positive
// ttl falls back to DefaultTTL.
func New(leases store.LeaseStore, ttl time.Duration) *Keeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Keeper{
		leases: leases,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lease. Returns store.ErrLeaseHeld when another live
// writer holds it.
func (k *Keeper) Acquire(ctx context.Context) error {
	return k.leases.AcquireLease(ctx, k.owner, k.ttl)
}

// Renew extends the lease expiry. Renewal by the current owner always
// succeeds while the lease has not been taken over after expiry.
func (k *Keeper) Renew(ctx context.Context) error {
	return k.leases.AcquireLease(ctx, k.owner, k.ttl)
}

// Release gives the lease up. Safe to call when not held.
func (k *Keeper) Release(ctx context.Context) error {
	return k.leases.ReleaseLease(ctx, k.owner)
}

// Owner returns this keeper's writer ID.
func (k *Keeper) Owner() string {
	return k.owner
}
