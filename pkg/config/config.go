// Package config loads the simdeck YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simdeck/simdeck/pkg/live"
)

// Config is the top-level simdeck configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig describes the simulation server to talk to.
type ServerConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
}

// EngineConfig tunes the live event engine. Zero values fall back to the
// engine defaults.
type EngineConfig struct {
	BatchWindow    string `yaml:"batch_window"`    // Coalescing window as a duration string (e.g. "50ms").
	ReconnectDelay string `yaml:"reconnect_delay"` // Delay between reconnect attempts (e.g. "2s").
	MaxReconnects  int    `yaml:"max_reconnects"`  // Attempts before giving up (0 = default).
	MessageCap     int    `yaml:"message_cap"`     // Live message log capacity (0 = default).
	HistoryCap     int    `yaml:"history_cap"`     // Diagnostic event history capacity (0 = default).
}

// ArchiveConfig controls event recording.
type ArchiveConfig struct {
	Path string `yaml:"path"` // SQLite database path ("" disables recording).
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address for /metrics ("" disables).
}

// Load reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so API keys can live in the environment (e.g. loaded from a
// .env file) rather than in the committed config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent. The
// server URL may stay empty: commands that need one enforce it themselves,
// offline replay does not.
func (c Config) Validate() error {
	if _, err := c.Engine.batchWindow(); err != nil {
		return err
	}
	if _, err := c.Engine.reconnectDelay(); err != nil {
		return err
	}

	if c.Engine.MaxReconnects < 0 {
		return fmt.Errorf("config: engine max_reconnects must not be negative")
	}
	if c.Engine.MessageCap < 0 {
		return fmt.Errorf("config: engine message_cap must not be negative")
	}
	if c.Engine.HistoryCap < 0 {
		return fmt.Errorf("config: engine history_cap must not be negative")
	}

	return nil
}

func (e EngineConfig) batchWindow() (time.Duration, error) {
	return parseDuration("batch_window", e.BatchWindow)
}

func (e EngineConfig) reconnectDelay() (time.Duration, error) {
	return parseDuration("reconnect_delay", e.ReconnectDelay)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: engine %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: engine %s must not be negative", field)
	}
	return d, nil
}

// EngineOptions translates the engine section into live.Options. The caller
// fills in the transport factory and the other runtime collaborators.
func (c Config) EngineOptions() live.Options {
	window, _ := c.Engine.batchWindow()
	delay, _ := c.Engine.reconnectDelay()

	return live.Options{
		BatchWindow:    window,
		ReconnectDelay: delay,
		MaxReconnects:  c.Engine.MaxReconnects,
		MessageCap:     c.Engine.MessageCap,
		HistoryCap:     c.Engine.HistoryCap,
	}
}
