package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rexecd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_address = "0.0.0.0:7700"
state_db_path = "/var/lib/rexecd/state.db"
pty_cols = 80
pty_rows = 24
metrics_address = "127.0.0.1:9090"

[handshake]
compression = true
encryption = true
`), 0o644))

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7700", cfg.ListenAddress)
	require.True(t, cfg.Handshake.Encryption)
	require.EqualValues(t, 80, cfg.PTYCols)
}

func TestLoadClientConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rexec.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
destination = "rexec://user@host:7700"
state_db_path = "/home/user/.rexec/state.db"

[reconnect]
policy = "exponential_backoff"
initial_ms = 100
max_ms = 30000
max_retries = 10
`), 0o644))

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	require.Equal(t, "rexec://user@host:7700", cfg.Destination)
	require.Equal(t, "exponential_backoff", cfg.Reconnect.Policy)
	require.Equal(t, int64(30000), cfg.Reconnect.MaxMS)
}

func TestLoadServerConfigMissingFileErrors(t *testing.T) {
	_, err := LoadServer(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
