package trader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()

	t.Run("MissingFileIsStopped", func(t *testing.T) {
		st, err := ReadStatus(filepath.Join(dir, "absent.json"))

		require.NoError(t, err)
		assert.Equal(t, StateStopped, st.State)
		assert.False(t, st.Running)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		path := filepath.Join(dir, "status.json")
		at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		msg := "timeout"
		want := Status{
			RunID:            "run-1",
			State:            StateRunning,
			Running:          true,
			LastCycleAt:      &at,
			LastError:        &msg,
			ActivePairs:      []string{"ETHUSD"},
			ActiveStrategies: []string{"rsi"},
			ProcessedSignals: 2,
		}
		require.NoError(t, writeStatus(path, want))

		got, err := ReadStatus(path)

		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("NullsAreWritten", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, writeStatus(path, Status{State: StateStopped}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"last_error": null`)
		assert.Contains(t, string(data), `"active_pairs": []`)
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

		_, err := ReadStatus(path)

		assert.Error(t, err)
	})
}

func TestStopMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control", "stop.flag")
	assert.False(t, stopMarkerExists(path))

	require.NoError(t, WriteStopMarker(path))
	assert.True(t, stopMarkerExists(path))

	require.NoError(t, clearStopMarker(path))
	assert.False(t, stopMarkerExists(path))
	assert.NoError(t, clearStopMarker(path))
}
