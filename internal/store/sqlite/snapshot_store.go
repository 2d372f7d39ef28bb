// Package sqlite implements the snapvault storage interfaces on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/snapvault/internal/checksum"
	"github.com/scrypster/snapvault/internal/store"
	"github.com/scrypster/snapvault/pkg/types"
)

// Schema is the embedded DDL, applied on open. Timestamps are stored as
// Unix nanoseconds so ordering comparisons stay integer-only.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	checksum   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at
	ON snapshots(created_at DESC);

CREATE TABLE IF NOT EXISTS stream_lease (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	owner      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// SnapshotStore implements store.SnapshotStore and store.LeaseStore using
// SQLite.
type SnapshotStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// New opens (or creates) a SQLite-backed snapshot store at the given DSN.
// A nil clock defaults to the real clock; tests pass a fake clock so
// snapshot timestamps are deterministic.
func New(dsn string, clock clockwork.Clock) (*SnapshotStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", store.ErrStorage, err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode lets readers proceed without blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", store.ErrStorage, err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to set busy timeout: %v", store.ErrStorage, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", store.ErrStorage, err)
	}

	return &SnapshotStore{db: db, clock: clock}, nil
}

// Create persists a new snapshot. The version is assigned inside a
// transaction as max(version)+1 so versions stay strictly increasing even
// after older snapshots have been pruned.
func (s *SnapshotStore) Create(ctx context.Context, payload []byte) (*types.Snapshot, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is required", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", store.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxVersion int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM snapshots",
	).Scan(&maxVersion); err != nil {
		return nil, fmt.Errorf("%w: failed to read stream version: %v", store.ErrStorage, err)
	}

	snap := &types.Snapshot{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: s.clock.Now().UTC(),
		Version:   maxVersion + 1,
		Checksum:  checksum.Sum(payload),
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, payload, checksum, version, created_at) VALUES (?, ?, ?, ?, ?)",
		snap.ID, snap.Payload, snap.Checksum, snap.Version, snap.CreatedAt.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("%w: failed to insert snapshot: %v", store.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit snapshot: %v", store.ErrStorage, err)
	}

	return snap, nil
}

// List returns all snapshots, newest first.
func (s *SnapshotStore) List(ctx context.Context) ([]*types.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, checksum, version, created_at FROM snapshots ORDER BY created_at DESC, version DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list snapshots: %v", store.ErrStorage, err)
	}
	defer rows.Close()

	var snapshots []*types.Snapshot
	for rows.Next() {
		var snap types.Snapshot
		var createdAt int64
		if err := rows.Scan(&snap.ID, &snap.Payload, &snap.Checksum, &snap.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan snapshot: %v", store.ErrStorage, err)
		}
		snap.CreatedAt = time.Unix(0, createdAt).UTC()
		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate snapshots: %v", store.ErrStorage, err)
	}

	return snapshots, nil
}

// DeleteByID removes a snapshot. Absent IDs are a no-op, not an error.
func (s *SnapshotStore) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: snapshot ID is required", store.ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: failed to delete snapshot: %v", store.ErrStorage, err)
	}
	return nil
}

// Prune deletes all but the maxCount newest snapshots. The newest snapshot
// is always retained because the keep-set is computed from the same
// ordering Create just appended to.
func (s *SnapshotStore) Prune(ctx context.Context, maxCount int) (int, error) {
	if maxCount < 1 {
		return 0, fmt.Errorf("%w: maxCount must be at least 1", store.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC, version DESC LIMIT ?
		)`, maxCount)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prune snapshots: %v", store.ErrStorage, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count pruned snapshots: %v", store.ErrStorage, err)
	}
	return int(deleted), nil
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
