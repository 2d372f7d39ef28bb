package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/snapvault/internal/store/flagfile"
)

func TestCrashFlagRoundTrip(t *testing.T) {
	tracker := NewCrashTracker(flagfile.New(t.TempDir()))

	unclean, err := tracker.WasPriorSessionUnclean()
	require.NoError(t, err)
	assert.False(t, unclean, "fresh install should read as clean")

	require.NoError(t, tracker.MarkSessionActive())

	unclean, err = tracker.WasPriorSessionUnclean()
	require.NoError(t, err)
	assert.True(t, unclean, "flag present means unclean")

	require.NoError(t, tracker.ClearFlag())

	unclean, err = tracker.WasPriorSessionUnclean()
	require.NoError(t, err)
	assert.False(t, unclean, "cleared flag means clean shutdown")
}

func TestCrashFlagSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	// First "session" sets the flag and never clears it.
	require.NoError(t, NewCrashTracker(flagfile.New(dir)).MarkSessionActive())

	// Next "session" over the same data dir sees the unclean shutdown.
	unclean, err := NewCrashTracker(flagfile.New(dir)).WasPriorSessionUnclean()
	require.NoError(t, err)
	assert.True(t, unclean)
}

func TestClearFlagIdempotent(t *testing.T) {
	tracker := NewCrashTracker(flagfile.New(t.TempDir()))

	require.NoError(t, tracker.ClearFlag())
	require.NoError(t, tracker.ClearFlag())
}
