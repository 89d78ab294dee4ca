// Package config loads and validates the fedisync YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path of the database file. Empty means ~/.local/share/fedisync/fedisync.db.
	Path string `yaml:"path"`
}

// HTTPConfig configures the `serve` command.
type HTTPConfig struct {
	// ListenAddr is the host:port the API listens on. Defaults to 127.0.0.1:8080.
	ListenAddr string `yaml:"listen_addr"`
}

// RemoteConfig tunes requests to remote servers.
type RemoteConfig struct {
	// Timeout bounds a single HTTP request. Between 1s and 5m, default 30s.
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent is sent with every request. Defaults to "fedisync".
	UserAgent string `yaml:"user_agent"`
}

// SyncConfig tunes the sync passes.
type SyncConfig struct {
	// PageLimit is the number of items fetched per pass when the caller does
	// not ask for a specific size. Between 1 and 40, default 20.
	PageLimit int `yaml:"page_limit"`

	// RefreshOnReimport refreshes mirrored counters of objects that were
	// already imported. When false the first imported copy wins.
	RefreshOnReimport bool `yaml:"refresh_on_reimport"`

	// RetryAttempts bounds retries of a pass that failed transiently.
	// Between 1 and 10, default 3.
	RetryAttempts int `yaml:"retry_attempts"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "fedisync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`

	// MetricInterval is the metric export period. Zero means one minute.
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// DefaultPath returns the default config file path: ~/.config/fedisync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fedisync", "config.yaml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	_ = cfg.validate() // the zero value only needs defaults filled in
	return &cfg
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate fills defaults and checks that every field is in range.
func (c *Config) validate() error {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = "127.0.0.1:8080"
	}

	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}
	if c.Remote.Timeout < time.Second {
		return fmt.Errorf("remote.timeout %v is too short (minimum 1s)", c.Remote.Timeout)
	}
	if c.Remote.Timeout > 5*time.Minute {
		return fmt.Errorf("remote.timeout %v is too long (maximum 5m)", c.Remote.Timeout)
	}
	if c.Remote.UserAgent == "" {
		c.Remote.UserAgent = "fedisync"
	}

	if c.Sync.PageLimit == 0 {
		c.Sync.PageLimit = 20
	}
	if c.Sync.PageLimit < 1 || c.Sync.PageLimit > 40 {
		return fmt.Errorf("sync.page_limit %d must be between 1 and 40", c.Sync.PageLimit)
	}

	if c.Sync.RetryAttempts == 0 {
		c.Sync.RetryAttempts = 3
	}
	if c.Sync.RetryAttempts < 1 || c.Sync.RetryAttempts > 10 {
		return fmt.Errorf("sync.retry_attempts %d must be between 1 and 10", c.Sync.RetryAttempts)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
		if c.Telemetry.MetricInterval < 0 {
			return fmt.Errorf("telemetry.metric_interval must not be negative, got %s", c.Telemetry.MetricInterval)
		}
	}

	return nil
}
