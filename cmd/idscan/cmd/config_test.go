package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "conf", "idscan.yaml")

	out, err := executeCommand(t, "config", "init", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engine: replay")
	assert.Contains(t, string(data), "port: 8080")
}

func TestConfigShowAndInfoCommands(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "pipeline:")
	assert.Contains(t, out, "server:")

	out, err = executeCommand(t, "config", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment prefix: IDSCAN")
}
