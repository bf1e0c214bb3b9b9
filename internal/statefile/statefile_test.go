package statefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, Write(path, doc{Name: "engine", Count: 3}))

	var got doc
	require.NoError(t, Read(path, &got))
	assert.Equal(t, doc{Name: "engine", Count: 3}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	var got doc
	err := Read(filepath.Join(dir, "missing.json"), &got)
	assert.ErrorIs(t, err, ErrNotExist)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o644))
	err = Read(corrupt, &got)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
}
