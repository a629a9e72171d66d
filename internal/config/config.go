// Package config holds runtime configuration for the dashboard service and
// its command line tools.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// AppName is used for XDG directory paths.
const AppName = "scanzie"

// Defaults.
const (
	DefaultListenAddr           = ":8080"
	DefaultBackendURL           = "http://localhost:9999"
	DefaultBaseURL              = "http://localhost:8080"
	DefaultDatabaseDriver       = "sqlite"
	DefaultPollInterval         = 2 * time.Second
	DefaultRedirectDelay        = 1 * time.Second
	DefaultMaxConsecutiveErrors = 150
	DefaultRequestTimeout       = 15 * time.Second
	DefaultCacheTTL             = 60 * time.Second
	DefaultWatchRetention       = 10 * time.Minute
	DefaultLogLevel             = "info"
)

// Config is the full service configuration. Field tags name the YAML keys.
type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `yaml:"listen_addr"`

	// BackendURL is the origin of the external analysis backend.
	BackendURL string `yaml:"backend_url"`

	// BaseURL is this application's public origin. It is used for
	// session lookups by the CLI and for CORS.
	BaseURL string `yaml:"base_url"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	Database DatabaseConfig `yaml:"database"`

	// RedisURL enables the shared Redis cache. Empty means in-process cache.
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	Poll PollConfig `yaml:"poll"`

	// WatchRetention is how long finished watches stay queryable.
	WatchRetention time.Duration `yaml:"watch_retention"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	S3 S3Config `yaml:"s3"`

	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// PollConfig tunes the progress poller.
type PollConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RedirectDelay time.Duration `yaml:"redirect_delay"`
	// MaxConsecutiveErrors of 0 retries forever.
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
	// MaxDuration of 0 is unbounded.
	MaxDuration    time.Duration `yaml:"max_duration"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type TelemetryConfig struct {
	SentryDSN    string `yaml:"sentry_dsn"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
}

// S3Config configures report archiving. An empty Bucket disables it.
type S3Config struct {
	ServiceURL string `yaml:"service_url"`
	Region     string `yaml:"region"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		BackendURL:     DefaultBackendURL,
		BaseURL:        DefaultBaseURL,
		AllowedOrigins: []string{"http://localhost:3000"},
		Database: DatabaseConfig{
			Driver: DefaultDatabaseDriver,
			URL:    filepath.Join(XDGDataDir(), "scanzie.db"),
		},
		CacheTTL: DefaultCacheTTL,
		Poll: PollConfig{
			Interval:             DefaultPollInterval,
			RedirectDelay:        DefaultRedirectDelay,
			MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
			RequestTimeout:       DefaultRequestTimeout,
		},
		WatchRetention: DefaultWatchRetention,
		S3:             S3Config{Region: "us-east-1"},
		LogLevel:       DefaultLogLevel,
	}
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/scanzie.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/scanzie.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first problem found, as one of the sentinel errors.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return ErrMissingBackendURL
	}
	if c.Poll.Interval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.Poll.RedirectDelay < 0 {
		return ErrInvalidRedirectDelay
	}
	if c.Poll.MaxConsecutiveErrors < 0 {
		return ErrInvalidErrorLimit
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return ErrUnknownDatabaseDriver
	}
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}
