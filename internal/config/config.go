// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CANVASD_*, runtime override)
//  2. Config file (~/.canvasd/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: HTTP listen address and per-IP rate limiting
//   - Canvas: debounce window, tool progress timeout, visualization tool
//     allowlist, seen-set capacity
//   - Observability: OTLP trace export
//   - Log: level and format
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultAddr is the default listen address for the HTTP host.
	DefaultAddr = "127.0.0.1:3400"

	// DefaultDebounceMs coalesces stream mutations during token streaming.
	DefaultDebounceMs = 150

	// DefaultProgressTimeoutSec bounds the gap between progress updates of
	// one tool call.
	DefaultProgressTimeoutSec = 30

	// DefaultSeenCacheSize bounds the per-session idempotence seen-set.
	DefaultSeenCacheSize = 1024

	// DefaultGroupName labels a canvas whose artifacts never declared one.
	DefaultGroupName = "Canvas"
)

// DefaultAllowlist names the visualization tools the scanner watches.
var DefaultAllowlist = []string{
	"create_chart",
	"create_gauge",
	"create_table",
	"create_dashboard",
	"create_image",
	"create_document",
}

// Config stores application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" json:"server"`
	Canvas        CanvasConfig        `mapstructure:"canvas" json:"canvas"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
	Log           LogConfig           `mapstructure:"log" json:"log"`
}

// ServerConfig holds the HTTP host settings.
type ServerConfig struct {
	Addr           string  `mapstructure:"addr" json:"addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`     // Tokens refilled per second per IP
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"` // Maximum tokens per IP
}

// CanvasConfig holds the streaming engine settings.
type CanvasConfig struct {
	DebounceMs         int      `mapstructure:"debounce_ms" json:"debounce_ms"`
	ProgressTimeoutSec int      `mapstructure:"progress_timeout_sec" json:"progress_timeout_sec"`
	Allowlist          []string `mapstructure:"allowlist" json:"allowlist"`
	DefaultGroupName   string   `mapstructure:"default_group_name" json:"default_group_name"`
	SeenCacheSize      int      `mapstructure:"seen_cache_size" json:"seen_cache_size"`
}

// ObservabilityConfig holds OTLP trace export settings.
type ObservabilityConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP HTTP endpoint (host:port)
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"` // "debug", "info", "warn", "error"
	JSON  bool   `mapstructure:"json" json:"json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".canvasd")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)

	v.SetEnvPrefix("CANVASD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail-fast: an invalid configuration never reaches the engine.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.rate_limit_rps", 10.0)
	v.SetDefault("server.rate_limit_burst", 30)

	v.SetDefault("canvas.debounce_ms", DefaultDebounceMs)
	v.SetDefault("canvas.progress_timeout_sec", DefaultProgressTimeoutSec)
	v.SetDefault("canvas.allowlist", DefaultAllowlist)
	v.SetDefault("canvas.default_group_name", DefaultGroupName)
	v.SetDefault("canvas.seen_cache_size", DefaultSeenCacheSize)

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.endpoint", "localhost:4318")
	v.SetDefault("observability.environment", "dev")
	v.SetDefault("observability.service_name", "canvasd")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}
