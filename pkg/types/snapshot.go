// Package types defines the shared domain types for the snapvault
// durability layer: snapshots, the workspace payload schema, and
// per-session recovery state.
package types

import (
	"time"
)

// Snapshot is a versioned, checksummed capture of workspace state.
type Snapshot struct {
	// ID uniquely identifies this snapshot instance.
	ID string

	// Payload is the serialized workspace state.
	Payload []byte

	// CreatedAt is when the snapshot was persisted.
	CreatedAt time.Time

	// Version is the position in the backup stream, starting at 1.
	Version int

	// Checksum is the SHA-256 hex digest of Payload, computed at creation.
	Checksum string
}

// SnapshotInfo contains snapshot metadata without the payload.
// Used by listing commands that do not need to load payload bytes.
type SnapshotInfo struct {
	// ID uniquely identifies the snapshot.
	ID string

	// CreatedAt is when the snapshot was persisted.
	CreatedAt time.Time

	// Version is the position in the backup stream.
	Version int

	// Size is the payload size in bytes.
	Size int64
}
