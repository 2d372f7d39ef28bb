package types

import (
	"sync"
	"time"
)

// SessionState tracks recovery bookkeeping for one running session.
// A single instance is constructed at startup and shared by the recovery
// engine and the auto-backup scheduler; it is not persisted and not shared
// across processes (only the crash flag itself is durable).
type SessionState struct {
	mu sync.Mutex

	lastSavedAt         time.Time
	hasUnsavedChanges   bool
	backupCount         int
	priorSessionCrashed bool
}

// NewSessionState creates session state for a fresh session.
// priorSessionCrashed is computed once at startup from the crash flag and
// is immutable for the lifetime of the session.
func NewSessionState(priorSessionCrashed bool) *SessionState {
	return &SessionState{priorSessionCrashed: priorSessionCrashed}
}

// MarkDirty records that the workspace has unsaved changes.
func (s *SessionState) MarkDirty() {
	s.mu.Lock()
	s.hasUnsavedChanges = true
	s.mu.Unlock()
}

// MarkSaved records a successful backup at the given time.
func (s *SessionState) MarkSaved(at time.Time) {
	s.mu.Lock()
	s.lastSavedAt = at
	s.hasUnsavedChanges = false
	s.backupCount++
	s.mu.Unlock()
}

// LastSavedAt returns the time of the most recent successful backup this
// session, or the zero time if none yet.
func (s *SessionState) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// HasUnsavedChanges reports whether a mutation has been recorded since the
// last successful backup.
func (s *SessionState) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasUnsavedChanges
}

// BackupCount returns the number of backups created this session.
func (s *SessionState) BackupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupCount
}

// PriorSessionCrashed reports whether the previous session ended uncleanly.
func (s *SessionState) PriorSessionCrashed() bool {
	return s.priorSessionCrashed
}
