// Package notify provides cross-process backup event notification between
// the embedding application and companion tools (such as the snapvault
// maintenance CLI) using filesystem events.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event types emitted by the durability layer.
const (
	EventBackupCompleted   = "backup_completed"
	EventBackupFailed      = "backup_failed"
	EventRecoveryPerformed = "recovery_performed"
)

// Event is the payload written to an event file.
type Event struct {
	Type       string `json:"type"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Version    int    `json:"version,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Time       int64  `json:"time"`
}

// EventWriter writes notification event files to a shared directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// Notify writes an event file. A zero Time is stamped with the current
// time. Safe to call concurrently. Errors are returned but not fatal.
func (w *EventWriter) Notify(evt Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	if evt.Time == 0 {
		evt.Time = time.Now().UnixNano()
	}
	data, _ := json.Marshal(evt)
	filename := fmt.Sprintf("%d-%s.event", evt.Time, sanitizeID(evt.Type+"-"+evt.SnapshotID))
	path := filepath.Join(w.dir, filename)
	return os.WriteFile(path, data, 0o600)
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] == '/' || id[i] == ':' {
			out[i] = '_'
		} else {
			out[i] = id[i]
		}
	}
	return string(out)
}
