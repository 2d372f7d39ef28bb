package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/snapvault/internal/store"
)

// AcquireLease takes the single-writer stream lease for owner until
// now+ttl. A lease held by another owner and not yet expired yields
// ErrLeaseHeld; re-acquiring by the same owner extends the expiry.
func (s *SnapshotStore) AcquireLease(ctx context.Context, owner string, ttl time.Duration) error {
	if owner == "" {
		return fmt.Errorf("%w: lease owner is required", store.ErrInvalidInput)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: lease ttl must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", store.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock.Now().UTC()

	var current string
	var expiresAt int64
	err = tx.QueryRowContext(ctx, "SELECT owner, expires_at FROM stream_lease WHERE id = 1").Scan(&current, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Lease is free.
	case err != nil:
		return fmt.Errorf("%w: failed to read lease: %v", store.ErrStorage, err)
	default:
		if current != owner && time.Unix(0, expiresAt).After(now) {
			return fmt.Errorf("%w: owner %s", store.ErrLeaseHeld, current)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stream_lease (id, owner, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at`,
		owner, now.Add(ttl).UnixNano(),
	); err != nil {
		return fmt.Errorf("%w: failed to write lease: %v", store.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit lease: %v", store.ErrStorage, err)
	}
	return nil
}

// ReleaseLease gives up the lease if held by owner. Releasing a lease held
// by someone else (or no lease at all) is a no-op.
func (s *SnapshotStore) ReleaseLease(ctx context.Context, owner string) error {
	if owner == "" {
		return fmt.Errorf("%w: lease owner is required", store.ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM stream_lease WHERE id = 1 AND owner = ?", owner,
	); err != nil {
		return fmt.Errorf("%w: failed to release lease: %v", store.ErrStorage, err)
	}
	return nil
}

// LeaseOwner returns the current unexpired lease owner, or "" when free.
func (s *SnapshotStore) LeaseOwner(ctx context.Context) (string, error) {
	var owner string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, "SELECT owner, expires_at FROM stream_lease WHERE id = 1").Scan(&owner, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("%w: failed to read lease: %v", store.ErrStorage, err)
	}

	if !time.Unix(0, expiresAt).After(s.clock.Now().UTC()) {
		return "", nil
	}
	return owner, nil
}
