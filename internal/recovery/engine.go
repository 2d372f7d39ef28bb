package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/scrypster/snapvault/internal/checksum"
	"github.com/scrypster/snapvault/internal/store"
	"github.com/scrypster/snapvault/pkg/types"
)

var (
	// ErrIntegrity indicates a checksum mismatch on a candidate snapshot.
	// Non-fatal during the cascade; the next older snapshot is tried.
	ErrIntegrity = errors.New("snapshot checksum mismatch")

	// ErrValidation indicates a snapshot decoded but failed structural
	// checks. Treated identically to ErrIntegrity during the cascade.
	ErrValidation = errors.New("snapshot payload failed validation")

	// ErrRecoveryUnavailable means snapshots exist but none is usable.
	// Reportable, not fatal: callers proceed with default state.
	ErrRecoveryUnavailable = errors.New("recovery unavailable: no usable snapshot")
)

// Result is the outcome of a successful recovery.
type Result struct {
	// State is the recovered workspace state.
	State *types.WorkspaceState

	// Snapshot is the snapshot the state was recovered from. It is not
	// deleted; normal retention pruning still applies to it.
	Snapshot *types.Snapshot

	// Skipped is the number of newer snapshots rejected as corrupt
	// before this one verified.
	Skipped int
}

// Engine restores workspace state from the backup store.
type Engine struct {
	snapshots store.SnapshotStore
}

// NewEngine creates a recovery engine over the given snapshot store.
func NewEngine(snapshots store.SnapshotStore) *Engine {
	return &Engine{snapshots: snapshots}
}

// Recover walks snapshots newest-first and returns the first one that
// passes both checksum verification and structural validation.
//
// An empty store is a valid state for a brand-new install: Recover returns
// (nil, nil) rather than an error. When snapshots exist but every one is
// corrupt, it returns ErrRecoveryUnavailable.
func (e *Engine) Recover(ctx context.Context) (*Result, error) {
	snapshots, err := e.snapshots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for recovery: %w", err)
	}

	if len(snapshots) == 0 {
		log.Println("recovery: no snapshots available, nothing to recover")
		return nil, nil
	}

	skipped := 0
	for _, snap := range snapshots {
		if err := Verify(snap); err != nil {
			log.Printf("recovery: skipping snapshot %s (version %d): %v", snap.ID, snap.Version, err)
			skipped++
			continue
		}

		state, err := types.DecodeWorkspaceState(snap.Payload)
		if err != nil {
			log.Printf("recovery: skipping snapshot %s (version %d): %v: %v",
				snap.ID, snap.Version, ErrValidation, err)
			skipped++
			continue
		}

		log.Printf("recovery: restored snapshot %s (version %d, %d newer snapshots skipped)",
			snap.ID, snap.Version, skipped)
		return &Result{State: state, Snapshot: snap, Skipped: skipped}, nil
	}

	return nil, fmt.Errorf("%w: %d snapshots checked", ErrRecoveryUnavailable, len(snapshots))
}

// Verify checks a snapshot's payload against its stored checksum.
func Verify(snap *types.Snapshot) error {
	if !checksum.Verify(snap.Payload, snap.Checksum) {
		return ErrIntegrity
	}
	return nil
}
