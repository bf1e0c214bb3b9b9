package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"kraken-auto-trader-go/internal/config"
	"kraken-auto-trader-go/internal/risk"
	"kraken-auto-trader-go/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStatus(t *testing.T) {
	msg := "could not get balances"
	st := trader.Status{
		RunID:            "run-42",
		State:            trader.StateRunning,
		Running:          true,
		DryRun:           true,
		LastError:        &msg,
		ActivePairs:      []string{"ETHUSD", "XBTUSD"},
		ActiveStrategies: []string{"rsi"},
		ProcessedSignals: 3,
	}
	summary := risk.Summary{
		AsOf:        "2025-03-10",
		DailyTrades: 2,
		DailyLoss:   12.345,
		Positions: map[string]risk.Position{
			"ETHUSD": {Direction: risk.DirectionLong, Volume: 0.5, EntryPrice: 3000},
		},
	}

	var buf bytes.Buffer
	renderStatus(&buf, st, summary)

	out := buf.String()
	assert.Contains(t, out, "RUNNING")
	assert.Contains(t, out, "DRY RUN")
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "ETHUSD, XBTUSD")
	assert.Contains(t, out, msg)
	assert.Contains(t, out, "12.35")
	assert.Contains(t, out, "long 0.500000 @ 3000.00")
}

func TestStatusCommandWithoutState(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		Engine: config.Engine{ControlDir: filepath.Join(dir, "control")},
		Risk:   config.Risk{StateFile: filepath.Join(dir, "risk.json")},
	}

	var buf bytes.Buffer
	require.NoError(t, statusCommand(cfg, &buf))

	assert.Contains(t, buf.String(), "STOPPED")
	assert.Contains(t, buf.String(), time.Now().UTC().Format("2006-01-02"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"rsi", "macd"}, splitList(" rsi, ,macd "))
	assert.Nil(t, splitList(""))
}
