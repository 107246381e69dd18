package http

import (
	"fmt"
	"time"
)

// Config holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - ReadHeaderTimeout: 10s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - MaxMetadataSize: 64KiB
//
// ReadTimeout and WriteTimeout default to 0 (no limit) because uploads and
// downloads stream arbitrarily large bodies.
type Config struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// ReadHeaderTimeout bounds the time to read request headers.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"min=0"`

	// ReadTimeout bounds the time to read a whole request, body included.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds the time to write a whole response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for longer.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MaxMetadataSize caps the JSON metadata part of an upload, in bytes.
	MaxMetadataSize int64 `mapstructure:"max_metadata_size" yaml:"max_metadata_size" validate:"min=0"`

	// RateLimit throttles API requests per owner.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures the per-owner token bucket. A zero
// RequestsPerSecond disables rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond uint          `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint          `mapstructure:"burst" yaml:"burst"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`
}

// Enabled reports whether rate limiting is active.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxMetadataSize == 0 {
		c.MaxMetadataSize = 64 << 10
	}
	if c.RateLimit.Enabled() {
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = c.RateLimit.RequestsPerSecond
		}
		if c.RateLimit.IdleTimeout == 0 {
			c.RateLimit.IdleTimeout = 10 * time.Minute
		}
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	for name, d := range map[string]time.Duration{
		"ReadHeaderTimeout": c.ReadHeaderTimeout,
		"ReadTimeout":       c.ReadTimeout,
		"WriteTimeout":      c.WriteTimeout,
		"IdleTimeout":       c.IdleTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("invalid %s %v: must be >= 0", name, d)
		}
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MaxMetadataSize <= 0 {
		return fmt.Errorf("invalid MaxMetadataSize %d: must be > 0", c.MaxMetadataSize)
	}
	return nil
}
