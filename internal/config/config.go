package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the tunable windows. Both carry the same duration but not the
// same boundary rule: a viewer seen exactly at the active-viewer window edge
// still counts as active, while a snapshot timestamp exactly at the
// reconciliation window edge does not match.
const (
	DefaultReconciliationWindowMS = 5000
	DefaultActiveViewerWindowMS   = 5000
	DefaultProbeIntervalMS        = 3000
)

// Config represents the global ~/.messageai/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	// ServerURL is the websocket endpoint of the remote real-time store.
	ServerURL string `toml:"server_url"`

	// Chats lists chat ids the daemon subscribes to on startup.
	Chats []string `toml:"chats"`

	// ReconciliationWindowMS is the tolerance used to match an optimistic
	// entry to its confirmed counterpart in the authoritative snapshot.
	ReconciliationWindowMS int64 `toml:"reconciliation_window_ms"`

	// ActiveViewerWindowMS is how recently a participant must have been seen
	// viewing a chat for unread-count increments to be suppressed.
	ActiveViewerWindowMS int64 `toml:"active_viewer_window_ms"`

	// ProbeIntervalMS is how often the network monitor probes reachability.
	ProbeIntervalMS int64 `toml:"probe_interval_ms"`

	// ProbeAddr is the host:port dialed by the reachability probe. Empty
	// means derive it from ServerURL.
	ProbeAddr string `toml:"probe_addr"`
}

// Default returns a config with all tunables at their defaults.
func Default() *Config {
	return &Config{
		ReconciliationWindowMS: DefaultReconciliationWindowMS,
		ActiveViewerWindowMS:   DefaultActiveViewerWindowMS,
		ProbeIntervalMS:        DefaultProbeIntervalMS,
	}
}

// ReconciliationWindow returns the reconciliation window as a duration.
func (c *Config) ReconciliationWindow() time.Duration {
	return time.Duration(c.ReconciliationWindowMS) * time.Millisecond
}

// ProbeInterval returns the probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMS) * time.Millisecond
}

// Load reads config from the given path, filling unset windows with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.ReconciliationWindowMS <= 0 {
		cfg.ReconciliationWindowMS = DefaultReconciliationWindowMS
	}
	if cfg.ActiveViewerWindowMS <= 0 {
		cfg.ActiveViewerWindowMS = DefaultActiveViewerWindowMS
	}
	if cfg.ProbeIntervalMS <= 0 {
		cfg.ProbeIntervalMS = DefaultProbeIntervalMS
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
