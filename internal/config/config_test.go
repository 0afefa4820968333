package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
loader:
  maxRetries: 7
outboundServers:
  demo:
    transport: subprocess
    command: echo
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Loader.MaxRetries)
	assert.Equal(t, 30_000, cfg.Loader.ServerTimeoutMs, "unset fields fall back to their defaults")
	assert.Equal(t, "{server}_1mcp_{tool}", cfg.ToolNamePattern)
	assert.Contains(t, cfg.OutboundServers, "demo")
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
