package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkspaceSchemaVersion is the current snapshot payload schema version.
// Decoders accept payloads up to and including this version.
const WorkspaceSchemaVersion = 1

// WorkspaceState is the snapshot payload schema: a tagged, versioned
// capture of the files the host application is editing. The explicit
// SchemaVersion field allows forward-compatible format evolution instead
// of ad hoc structural checks.
type WorkspaceState struct {
	// SchemaVersion identifies the payload format. Required.
	SchemaVersion int `json:"schema_version"`

	// Files is the workspace file set. Must be present (may be empty).
	Files []FileEntry `json:"files"`

	// ActiveFileID is the ID of the file focused when the snapshot was taken.
	ActiveFileID string `json:"active_file_id,omitempty"`

	// SavedAt is when the host application produced this state.
	SavedAt time.Time `json:"saved_at"`
}

// FileEntry is a single file within a workspace snapshot.
type FileEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Language  string    `json:"language,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of a decoded workspace state.
// A nil Files slice means the payload did not carry a files collection at
// all, which is treated as corrupt.
func (w *WorkspaceState) Validate() error {
	if w.SchemaVersion < 1 || w.SchemaVersion > WorkspaceSchemaVersion {
		return fmt.Errorf("unsupported schema version %d", w.SchemaVersion)
	}
	if w.Files == nil {
		return fmt.Errorf("workspace state missing files collection")
	}
	return nil
}

// Encode serializes the workspace state to its JSON payload form.
func (w *WorkspaceState) Encode() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workspace state: %w", err)
	}
	return data, nil
}

// DecodeWorkspaceState parses and validates a snapshot payload.
func DecodeWorkspaceState(payload []byte) (*WorkspaceState, error) {
	var w WorkspaceState
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("failed to decode workspace state: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}
