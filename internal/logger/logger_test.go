package logger

import (
	"os"
	"path/filepath"
	"testing"

	"kraken-auto-trader-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSONToFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.log")

		log, err := NewLogger(config.Logger{Level: "info", Format: "json", OutputPaths: []string{path}})
		require.NoError(t, err)
		log.Info("cycle complete")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"cycle complete"`)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := NewLogger(config.Logger{Level: "loud"})
		assert.Error(t, err)
	})
}
