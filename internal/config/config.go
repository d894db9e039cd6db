// Package config loads application configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides.
// Nested keys are separated with a double underscore, for example
// WARROOM_SERVER__PORT overrides server.port.
const envPrefix = "WARROOM_"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// APIConfig holds settings for the public API surface.
type APIConfig struct {
	TriggerRateRPS   float64 `koanf:"trigger_rate_rps"`
	TriggerRateBurst int     `koanf:"trigger_rate_burst"`
}

// PipelineConfig holds pipeline coordinator settings.
type PipelineConfig struct {
	StageTimeout          time.Duration `koanf:"stage_timeout"`
	PacingMin             time.Duration `koanf:"pacing_min"`
	PacingMax             time.Duration `koanf:"pacing_max"`
	FailFast              bool          `koanf:"fail_fast"`
	HistoryLimit          int           `koanf:"history_limit"`
	ExecutionHistoryLimit int           `koanf:"execution_history_limit"`
}

// KnowledgeConfig holds knowledge registry settings.
type KnowledgeConfig struct {
	RelevanceThreshold float64 `koanf:"relevance_threshold"`
}

// MessagingConfig holds messaging exchange settings.
type MessagingConfig struct {
	HistoryLimit int `koanf:"history_limit"`
}

// RealtimeConfig holds realtime broadcast settings.
type RealtimeConfig struct {
	SendBuffer int `koanf:"send_buffer"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	CORS      CORSConfig      `koanf:"cors"`
	API       APIConfig       `koanf:"api"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Messaging MessagingConfig `koanf:"messaging"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		API: APIConfig{
			TriggerRateRPS:   5,
			TriggerRateBurst: 10,
		},
		Pipeline: PipelineConfig{
			StageTimeout:          30 * time.Second,
			PacingMin:             500 * time.Millisecond,
			PacingMax:             1500 * time.Millisecond,
			FailFast:              false,
			HistoryLimit:          100,
			ExecutionHistoryLimit: 50,
		},
		Knowledge: KnowledgeConfig{
			RelevanceThreshold: 0.7,
		},
		Messaging: MessagingConfig{
			HistoryLimit: 1000,
		},
		Realtime: RealtimeConfig{
			SendBuffer: 64,
		},
	}
}

// Load reads configuration from the optional YAML file at path, applies
// environment overrides and validates the result. An empty path skips the
// file layer entirely.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", c.Log.Format)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	if c.Server.MetricsPort == "" {
		return fmt.Errorf("server.metrics_port must not be empty")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be positive")
	}
	if c.Pipeline.PacingMin < 0 || c.Pipeline.PacingMax < c.Pipeline.PacingMin {
		return fmt.Errorf("pipeline pacing window [%s, %s] is invalid", c.Pipeline.PacingMin, c.Pipeline.PacingMax)
	}
	if c.Knowledge.RelevanceThreshold < 0 || c.Knowledge.RelevanceThreshold > 1 {
		return fmt.Errorf("knowledge.relevance_threshold %v must be within [0, 1]", c.Knowledge.RelevanceThreshold)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.API.TriggerRateRPS <= 0 || c.API.TriggerRateBurst <= 0 {
		return fmt.Errorf("api trigger rate limit must be positive")
	}
	return nil
}
