package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for configuration validation.
var (
	ErrInvalidAddr          = errors.New("invalid server address")
	ErrInvalidRateLimit     = errors.New("invalid rate limit")
	ErrInvalidDebounce      = errors.New("invalid debounce window")
	ErrInvalidTimeout       = errors.New("invalid progress timeout")
	ErrInvalidSeenCacheSize = errors.New("invalid seen cache size")
	ErrEmptyAllowlist       = errors.New("tool allowlist is empty")
	ErrInvalidLogLevel      = errors.New("invalid log level")
)

// Validation ranges.
const (
	MinDebounceMs = 10
	MaxDebounceMs = 5000

	MinProgressTimeoutSec = 1
	MaxProgressTimeoutSec = 600

	MinSeenCacheSize = 16
	MaxSeenCacheSize = 65536
)

// Validate checks the entire configuration and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Canvas.validate(); err != nil {
		return err
	}
	return c.Log.validate()
}

func (s *ServerConfig) validate() error {
	if s.Addr == "" {
		return fmt.Errorf("%w: address is empty", ErrInvalidAddr)
	}
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		return fmt.Errorf("%w: %q is not host:port", ErrInvalidAddr, s.Addr)
	}
	if s.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rps must be positive, got %v", ErrInvalidRateLimit, s.RateLimitRPS)
	}
	if s.RateLimitBurst < 1 {
		return fmt.Errorf("%w: burst must be at least 1, got %d", ErrInvalidRateLimit, s.RateLimitBurst)
	}
	return nil
}

func (c *CanvasConfig) validate() error {
	if c.DebounceMs < MinDebounceMs || c.DebounceMs > MaxDebounceMs {
		return fmt.Errorf("%w: %dms outside [%d, %d]", ErrInvalidDebounce, c.DebounceMs, MinDebounceMs, MaxDebounceMs)
	}
	if c.ProgressTimeoutSec < MinProgressTimeoutSec || c.ProgressTimeoutSec > MaxProgressTimeoutSec {
		return fmt.Errorf("%w: %ds outside [%d, %d]", ErrInvalidTimeout, c.ProgressTimeoutSec, MinProgressTimeoutSec, MaxProgressTimeoutSec)
	}
	if c.SeenCacheSize < MinSeenCacheSize || c.SeenCacheSize > MaxSeenCacheSize {
		return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidSeenCacheSize, c.SeenCacheSize, MinSeenCacheSize, MaxSeenCacheSize)
	}
	if len(c.Allowlist) == 0 {
		return ErrEmptyAllowlist
	}
	for _, name := range c.Allowlist {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: contains a blank tool name", ErrEmptyAllowlist)
		}
	}
	if strings.TrimSpace(c.DefaultGroupName) == "" {
		c.DefaultGroupName = DefaultGroupName
	}
	return nil
}

func (l *LogConfig) validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}
}
