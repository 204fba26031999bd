package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Claude", "claude_desktop_config.json")

	entry, err := Configure(path, Options{BinaryPath: "/usr/local/bin/gravilog", DataDir: "/data/gravilog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp"}, entry.Args)

	config, err := Load(path)
	require.NoError(t, err)
	got := config.MCPServers[ServerName]
	assert.Equal(t, "/usr/local/bin/gravilog", got.Command)
	assert.Equal(t, "/data/gravilog", got.Env["GRAVILOG_DATA_DIR"])
}

func TestConfigure_PreservesOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")
	existing := `{
  "globalShortcut": "Ctrl+Space",
  "mcpServers": {
    "filesystem": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-filesystem"]}
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))

	_, err := Configure(path, Options{BinaryPath: "/bin/gravilog", ConfigFile: "/etc/gravilog/config.yaml"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"Ctrl+Space"`, string(raw["globalShortcut"]))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, config.MCPServers, "filesystem")
	assert.Equal(t, []string{"mcp", "--config", "/etc/gravilog/config.yaml"}, config.MCPServers[ServerName].Args)
}

func TestConfigure_RequiresBinary(t *testing.T) {
	_, err := Configure(filepath.Join(t.TempDir(), "c.json"), Options{})
	require.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")

	status, err := GetStatus(path, filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.Len(t, status.Issues, 1)

	binary := filepath.Join(dir, "gravilog")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	_, err = Configure(path, Options{BinaryPath: binary, DataDir: filepath.Join(dir, "data")})
	require.NoError(t, err)

	status, err = GetStatus(path, "/unused")
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, binary, status.ServerPath)
	assert.Empty(t, status.Issues)
}
