package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/snapvault/internal/store/sqlite"
	"github.com/scrypster/snapvault/pkg/types"
)

func testWorkspace() *types.WorkspaceState {
	return &types.WorkspaceState{
		SchemaVersion: types.WorkspaceSchemaVersion,
		Files:         []types.FileEntry{{ID: "f1", Name: "main.go", Content: "package main"}},
	}
}

// waitForBackups polls the session until count backups have completed.
// The fake clock controls tick timing; real time only bounds the wait for
// the loop goroutine to finish the write.
func waitForBackups(t *testing.T, session *types.SessionState, count int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for session.BackupCount() < count {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: expected %d backups, got %d", count, session.BackupCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestScheduler(t *testing.T, interval time.Duration, maxSnapshots int) (*Scheduler, *sqlite.SnapshotStore, *types.SessionState, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	snapshots, err := sqlite.New(":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapshots.Close() })

	session := types.NewSessionState(false)
	s, err := New(Config{
		Snapshots:    snapshots,
		Session:      session,
		Clock:        clock,
		Interval:     interval,
		MaxSnapshots: maxSnapshots,
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, snapshots, session, clock
}

func TestTickCreatesSnapshotAndUpdatesSession(t *testing.T) {
	s, snapshots, session, clock := newTestScheduler(t, 30*time.Second, 10)

	session.MarkDirty()

	s.Start(func(ctx context.Context) (*types.WorkspaceState, error) {
		return testWorkspace(), nil
	})

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	waitForBackups(t, session, 1)

	assert.False(t, session.HasUnsavedChanges())
	assert.False(t, session.LastSavedAt().IsZero())

	stored, err := snapshots.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].Version)
}

func TestFailedTickDoesNotStopTimer(t *testing.T) {
	s, _, session, clock := newTestScheduler(t, 30*time.Second, 10)

	calls := 0
	s.Start(func(ctx context.Context) (*types.WorkspaceState, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("editor state unavailable")
		}
		return testWorkspace(), nil
	})

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	// First tick fails; the next tick retries naturally.
	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	waitForBackups(t, session, 1)

	assert.GreaterOrEqual(t, calls, 2)
	assert.Equal(t, 1, session.BackupCount())
}

func TestRetentionAppliedAfterBackup(t *testing.T) {
	s, snapshots, session, clock := newTestScheduler(t, time.Second, 2)

	s.Start(func(ctx context.Context) (*types.WorkspaceState, error) {
		return testWorkspace(), nil
	})

	for i := 1; i <= 5; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		waitForBackups(t, session, i)
	}

	stored, err := snapshots.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 5, stored[0].Version)
	assert.Equal(t, 4, stored[1].Version)
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	s, _, session, clock := newTestScheduler(t, time.Second, 10)

	s.Start(func(ctx context.Context) (*types.WorkspaceState, error) {
		return testWorkspace(), nil
	})

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForBackups(t, session, 1)

	s.Stop()
	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, session.BackupCount())
}

func TestStartWhileRunningRestarts(t *testing.T) {
	s, _, session, clock := newTestScheduler(t, time.Second, 10)

	producer := func(ctx context.Context) (*types.WorkspaceState, error) {
		return testWorkspace(), nil
	}

	s.Start(producer)
	// Restart replaces the previous timer; there is never more than one.
	s.Start(producer)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForBackups(t, session, 1)

	s.Stop()
	assert.Equal(t, 1, session.BackupCount())
}

func TestBackupNowDirect(t *testing.T) {
	s, snapshots, session, _ := newTestScheduler(t, time.Minute, 10)

	snap, err := s.BackupNow(context.Background(), func(ctx context.Context) (*types.WorkspaceState, error) {
		return testWorkspace(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, 1, session.BackupCount())

	stored, err := snapshots.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestHealthReportsBackupTimes(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, time.Minute, 10)

	health, err := s.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "no backups yet", health.Message)
	assert.Zero(t, health.TotalSnapshots)

	_, err = s.BackupNow(context.Background(), func(ctx context.Context) (*types.WorkspaceState, error) {
		return testWorkspace(), nil
	})
	require.NoError(t, err)

	health, err = s.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, health.TotalSnapshots)
	assert.False(t, health.LastBackup.IsZero())
	assert.Positive(t, health.StoreBytes)
}
