package trader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"kraken-auto-trader-go/internal/statefile"
)

// State is the lifecycle state of the engine loop.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Status is the snapshot the engine publishes for other processes.
type Status struct {
	RunID            string     `json:"run_id,omitempty"`
	State            State      `json:"state"`
	Running          bool       `json:"running"`
	DryRun           bool       `json:"dry_run"`
	StartedAt        *time.Time `json:"started_at"`
	LastCycleAt      *time.Time `json:"last_cycle_at"`
	LastError        *string    `json:"last_error"`
	ActivePairs      []string   `json:"active_pairs"`
	ActiveStrategies []string   `json:"active_strategies"`
	ProcessedSignals int        `json:"processed_signals"`
	Cycles           int        `json:"cycles"`
}

// ReadStatus loads the status snapshot at path. A missing file reads as a
// stopped engine.
func ReadStatus(path string) (Status, error) {
	var st Status
	if err := statefile.Read(path, &st); err != nil {
		if errors.Is(err, statefile.ErrNotExist) {
			return Status{State: StateStopped, ActivePairs: []string{}, ActiveStrategies: []string{}}, nil
		}
		return Status{}, fmt.Errorf("failed to read engine status: %w", err)
	}
	return st, nil
}

func writeStatus(path string, st Status) error {
	if st.ActivePairs == nil {
		st.ActivePairs = []string{}
	}
	if st.ActiveStrategies == nil {
		st.ActiveStrategies = []string{}
	}
	return statefile.Write(path, st)
}

// WriteStopMarker asks a running engine to stop after its current cycle.
func WriteStopMarker(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create control directory: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte(stamp+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write stop marker: %w", err)
	}
	return nil
}

func stopMarkerExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func clearStopMarker(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
