package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "simdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("SIMDECK_API_KEY", "secret-key")

	cfg, err := Load(writeConfig(t, `
server:
  url: http://localhost:8000
  api_key: ${SIMDECK_API_KEY}
engine:
  batch_window: 75ms
  reconnect_delay: 1s
  max_reconnects: 3
archive:
  path: /tmp/simdeck.db
metrics:
  addr: :9090
`))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Server.URL)
	assert.Equal(t, "secret-key", cfg.Server.APIKey)
	assert.Equal(t, "75ms", cfg.Engine.BatchWindow)
	assert.Equal(t, 3, cfg.Engine.MaxReconnects)
	assert.Equal(t, "/tmp/simdeck.db", cfg.Archive.Path)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: load")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "empty config is valid",
			cfg:  Config{},
		},
		{
			name: "bad batch window",
			cfg: Config{
				Server: ServerConfig{URL: "http://localhost:8000"},
				Engine: EngineConfig{BatchWindow: "fast"},
			},
			wantErr: "batch_window",
		},
		{
			name: "negative reconnect delay",
			cfg: Config{
				Server: ServerConfig{URL: "http://localhost:8000"},
				Engine: EngineConfig{ReconnectDelay: "-1s"},
			},
			wantErr: "reconnect_delay must not be negative",
		},
		{
			name: "negative max reconnects",
			cfg: Config{
				Server: ServerConfig{URL: "http://localhost:8000"},
				Engine: EngineConfig{MaxReconnects: -1},
			},
			wantErr: "max_reconnects must not be negative",
		},
		{
			name: "valid minimal",
			cfg: Config{
				Server: ServerConfig{URL: "http://localhost:8000"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{URL: "http://localhost:8000"},
		Engine: EngineConfig{
			BatchWindow:    "75ms",
			ReconnectDelay: "1s",
			MaxReconnects:  3,
			MessageCap:     50,
			HistoryCap:     10,
		},
	}
	require.NoError(t, cfg.Validate())

	opts := cfg.EngineOptions()
	assert.Equal(t, 75*time.Millisecond, opts.BatchWindow)
	assert.Equal(t, time.Second, opts.ReconnectDelay)
	assert.Equal(t, 3, opts.MaxReconnects)
	assert.Equal(t, 50, opts.MessageCap)
	assert.Equal(t, 10, opts.HistoryCap)
}

func TestEngineOptionsZeroConfigLeavesDefaultsToEngine(t *testing.T) {
	opts := Config{Server: ServerConfig{URL: "http://localhost:8000"}}.EngineOptions()
	assert.Zero(t, opts.BatchWindow)
	assert.Zero(t, opts.ReconnectDelay)
	assert.Zero(t, opts.MaxReconnects)
}
