// Package config loads server and client configuration from TOML via
// github.com/BurntSushi/toml, the way katzenpost's config loading
// pulls a flat struct out of a single file before handing fields to the
// long-lived client2/server objects. Config loading lives entirely outside
// the core packages (wire, proto, postoffice, ...), which take plain Go
// structs or functional options; only cmd/rexecd and cmd/rexec touch this
// package.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Reconnect selects one of reconnect's policy constructors by name
// (fail/fixed_interval/exponential_backoff/fibonacci_backoff).
type Reconnect struct {
	Policy      string `toml:"policy"`
	IntervalMS  int64  `toml:"interval_ms"`
	MaxRetries  int    `toml:"max_retries"`
	InitialMS   int64  `toml:"initial_ms"`
	MaxMS       int64  `toml:"max_ms"`
}

// Handshake carries the codec and encryption preferences negotiated at
// connect time.
type Handshake struct {
	Compression bool `toml:"compression"`
	Encryption  bool `toml:"encryption"`
}

// Server is the rexecd-side configuration.
type Server struct {
	ListenAddress string    `toml:"listen_address"`
	Handshake     Handshake `toml:"handshake"`
	StateDBPath   string    `toml:"state_db_path"`
	PTYCols       uint16    `toml:"pty_cols"`
	PTYRows       uint16    `toml:"pty_rows"`
	MetricsAddr   string    `toml:"metrics_address"`
}

// Client is the rexec-side configuration.
type Client struct {
	Destination string    `toml:"destination"`
	Handshake   Handshake `toml:"handshake"`
	Reconnect   Reconnect `toml:"reconnect"`
	StateDBPath string    `toml:"state_db_path"`
}

// LoadServer decodes a Server config from path (grounded on katzenpost's
// toml.DecodeFile-style config loading).
func LoadServer(path string) (Server, error) {
	var cfg Server
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Server{}, fmt.Errorf("config: load server config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClient decodes a Client config from path.
func LoadClient(path string) (Client, error) {
	var cfg Client
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Client{}, fmt.Errorf("config: load client config %s: %w", path, err)
	}
	return cfg, nil
}
