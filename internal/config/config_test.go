package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())

		require.NoError(t, err)
		assert.Equal(t, "https://api.kraken.com", cfg.Kraken.BaseURL)
		assert.Equal(t, time.Minute, cfg.Engine.PollInterval)
		assert.Equal(t, "ETHUSD", cfg.Engine.DefaultPair)
		assert.True(t, cfg.Engine.DryRun)
		assert.Equal(t, time.Minute, cfg.Alerts.Cooldown)
	})

	t.Run("FileAndEnv", func(t *testing.T) {
		dir := t.TempDir()
		yml := []byte(`
engine:
  control_dir: /tmp/ctl
  poll_interval: 30s
  request_rate: 2
  dry_run: false
risk:
  limits:
    max_positions: 2
logger:
  level: debug
`)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), yml, 0o644))
		t.Setenv("KRAKEN_API_KEY", "from-env")

		cfg, err := LoadConfig(dir)

		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Kraken.ApiKey)
		assert.Equal(t, 30*time.Second, cfg.Engine.PollInterval)
		assert.False(t, cfg.Engine.DryRun)
		assert.Equal(t, "debug", cfg.Logger.Level)
		assert.Equal(t, "/tmp/ctl/status.json", cfg.Engine.StatusFile())
		assert.Equal(t, "/tmp/ctl/stop.flag", cfg.Engine.StopFile())
		assert.Equal(t, 500*time.Millisecond, cfg.Engine.RequestDelay())
		assert.EqualValues(t, 2, cfg.Risk.Limits["max_positions"])
	})

	t.Run("MalformedFile", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("engine: ["), 0o644))

		_, err := LoadConfig(dir)

		assert.Error(t, err)
	})
}

func TestRequestDelayFloor(t *testing.T) {
	assert.Equal(t, 10*time.Second, Engine{RequestRate: 0}.RequestDelay())
	assert.Equal(t, time.Second, Engine{RequestRate: 1}.RequestDelay())
}
