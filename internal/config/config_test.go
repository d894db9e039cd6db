package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 0.7, cfg.Knowledge.RelevanceThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.PacingMin)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pipeline.PacingMax)
	assert.False(t, cfg.Pipeline.FailFast)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9999"
pipeline:
  stage_timeout: 45s
  fail_fast: true
knowledge:
  relevance_threshold: 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.StageTimeout)
	assert.True(t, cfg.Pipeline.FailFast)
	assert.Equal(t, 0.5, cfg.Knowledge.RelevanceThreshold)

	// Untouched keys keep their defaults.
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9999\"\n"), 0o644))

	t.Setenv("WARROOM_SERVER__PORT", "7777")
	t.Setenv("WARROOM_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("WARROOM_LOG__LEVEL", "verbose")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"empty metrics port", func(c *Config) { c.Server.MetricsPort = "" }, "metrics_port"},
		{"zero stage timeout", func(c *Config) { c.Pipeline.StageTimeout = 0 }, "stage_timeout"},
		{"inverted pacing window", func(c *Config) {
			c.Pipeline.PacingMin = time.Second
			c.Pipeline.PacingMax = time.Millisecond
		}, "pacing window"},
		{"threshold above one", func(c *Config) { c.Knowledge.RelevanceThreshold = 1.5 }, "relevance_threshold"},
		{"zero send buffer", func(c *Config) { c.Realtime.SendBuffer = 0 }, "send_buffer"},
		{"zero trigger rate", func(c *Config) { c.API.TriggerRateRPS = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
