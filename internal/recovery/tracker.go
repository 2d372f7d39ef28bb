// Package recovery detects unclean shutdowns and restores workspace state
// from the newest usable snapshot.
package recovery

import (
	"errors"
	"fmt"

	"github.com/scrypster/snapvault/internal/store"
)

// crashFlagName is the durable flag set while a session is running. Its
// presence at the next startup means the previous run never reached the
// graceful-shutdown hook.
const crashFlagName = "session_active"

// CrashTracker manages the durable crash flag. The flag is binary and
// coarse: it does not distinguish crash types, and a user killing the
// process before the shutdown hook fires reads as unclean too.
type CrashTracker struct {
	flags store.FlagStore
}

// NewCrashTracker creates a tracker over the given flag store.
func NewCrashTracker(flags store.FlagStore) *CrashTracker {
	return &CrashTracker{flags: flags}
}

// MarkSessionActive sets the crash flag. Called once at startup, before
// any other recovery logic runs.
func (t *CrashTracker) MarkSessionActive() error {
	if err := t.flags.Set(crashFlagName, "1"); err != nil {
		return fmt.Errorf("failed to mark session active: %w", err)
	}
	return nil
}

// ClearFlag removes the crash flag. Called from the graceful-shutdown hook.
func (t *CrashTracker) ClearFlag() error {
	if err := t.flags.Remove(crashFlagName); err != nil {
		return fmt.Errorf("failed to clear crash flag: %w", err)
	}
	return nil
}

// WasPriorSessionUnclean reports whether the crash flag is still present
// from a previous run.
func (t *CrashTracker) WasPriorSessionUnclean() (bool, error) {
	_, err := t.flags.Get(crashFlagName)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read crash flag: %w", err)
	}
	return true, nil
}
