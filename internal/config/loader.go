package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name searched for in the working
// directory and the XDG config directory.
const DefaultConfigFile = "scanzie.yaml"

// Load builds a Config from defaults, the YAML file, a .env file in the
// working directory and the process environment, in increasing precedence.
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	found := FindConfigFile(path)
	if path != "" && found == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
	}
	if found != "" {
		if err := LoadConfigFile(found, cfg); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile decodes the YAML file at path over cfg.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // config path is user supplied
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// FindConfigFile searches in order: the explicit path, the working
// directory, the XDG config directory. It returns "" when nothing exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from environment variables. Both the dashboard's
// NEXT_PUBLIC_* names and the bare names are accepted; the bare name wins.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
			}
		}
	}

	str(&cfg.BackendURL, "NEXT_PUBLIC_BACKEND_URL", "BACKEND_URL")
	str(&cfg.BaseURL, "NEXT_PUBLIC_BASE_URL", "BASE_URL")
	str(&cfg.ListenAddr, "LISTEN_ADDR")
	str(&cfg.Database.Driver, "DATABASE_DRIVER")
	str(&cfg.Database.URL, "DATABASE_URL")
	str(&cfg.RedisURL, "REDIS_URL")
	str(&cfg.Telemetry.SentryDSN, "SENTRY_DSN")
	str(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	str(&cfg.Telemetry.Environment, "SCANZIE_ENV")
	str(&cfg.S3.ServiceURL, "S3_SERVICE_URL")
	str(&cfg.S3.Region, "S3_REGION")
	str(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	str(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	str(&cfg.S3.Bucket, "S3_BUCKET_NAME")
	str(&cfg.LogLevel, "LOG_LEVEL")

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"POLL_INTERVAL", &cfg.Poll.Interval},
		{"POLL_REDIRECT_DELAY", &cfg.Poll.RedirectDelay},
		{"POLL_MAX_DURATION", &cfg.Poll.MaxDuration},
		{"POLL_REQUEST_TIMEOUT", &cfg.Poll.RequestTimeout},
		{"CACHE_TTL", &cfg.CacheTTL},
		{"WATCH_RETENTION", &cfg.WatchRetention},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v, ok := lookup("POLL_MAX_ERRORS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLL_MAX_ERRORS: %w", err)
		}
		cfg.Poll.MaxConsecutiveErrors = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
