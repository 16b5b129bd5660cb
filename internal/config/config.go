// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level client configuration.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Session     SessionConfig     `yaml:"session"`
	Cache       CacheConfig       `yaml:"cache"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// APIConfig holds blog API transport settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RefreshPath    string        `yaml:"refresh_path"`
	UserAgent      string        `yaml:"user_agent"`
	PageLimit      int           `yaml:"page_limit"`
	DNSCache       bool          `yaml:"dns_cache"`
	RequestsPerMin int64         `yaml:"requests_per_minute"` // 0 = unlimited
	Breaker        BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig controls the per-resource-group circuit breakers.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"` // weighted error rate that opens the breaker
	MinSamples     int           `yaml:"min_samples"`
	Window         time.Duration `yaml:"window"` // at most 60s
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// SessionConfig bounds the refresh-and-retry flow.
type SessionConfig struct {
	MaxRefreshes  int           `yaml:"max_refreshes"`  // refreshes allowed per window before the session is ended
	RefreshWindow time.Duration `yaml:"refresh_window"` // 0 disables the storm guard
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	KeepAlive     time.Duration `yaml:"keep_alive"`     // idle time before an unsubscribed entry is evicted
	SweepInterval time.Duration `yaml:"sweep_interval"` // eviction sweep period
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`  // upper bound for one cache fill
	ETag          ETagConfig    `yaml:"etag"`
}

// ETagConfig controls the conditional GET memory.
type ETagConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// CredentialsConfig holds the login used by the CLI.
type CredentialsConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when a field is absent from the file.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:4000/api",
			RequestTimeout: 15 * time.Second,
			RefreshPath:    "/auth/refresh",
			UserAgent:      "blogsync",
			PageLimit:      10,
			Breaker: BreakerConfig{
				Enabled:        true,
				ErrorThreshold: 0.5,
				MinSamples:     10,
				Window:         30 * time.Second,
				OpenTimeout:    15 * time.Second,
			},
		},
		Session: SessionConfig{
			MaxRefreshes:  3,
			RefreshWindow: 30 * time.Second,
		},
		Cache: CacheConfig{
			KeepAlive:     60 * time.Second,
			SweepInterval: 10 * time.Second,
			FetchTimeout:  30 * time.Second,
			ETag: ETagConfig{
				Enabled: true,
				MaxSize: 1_000,
				TTL:     5 * time.Minute,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Addr: ":9464"},
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("config: api.request_timeout must be positive")
	}
	if c.API.PageLimit <= 0 {
		return fmt.Errorf("config: api.page_limit must be positive")
	}
	if b := c.API.Breaker; b.Enabled {
		if b.ErrorThreshold <= 0 || b.ErrorThreshold > 1.5 {
			return fmt.Errorf("config: api.circuit_breaker.error_threshold must be in (0, 1.5]")
		}
		if b.Window > time.Minute {
			return fmt.Errorf("config: api.circuit_breaker.window must not exceed 60s")
		}
	}
	if c.API.RequestsPerMin < 0 {
		return fmt.Errorf("config: api.requests_per_minute must not be negative")
	}
	if c.Session.MaxRefreshes < 0 {
		return fmt.Errorf("config: session.max_refreshes must not be negative")
	}
	if e := c.Cache.ETag; e.Enabled {
		if e.MaxSize <= 0 {
			return fmt.Errorf("config: cache.etag.max_size must be positive")
		}
		if e.TTL <= 0 {
			return fmt.Errorf("config: cache.etag.ttl must be positive")
		}
	}
	return nil
}
