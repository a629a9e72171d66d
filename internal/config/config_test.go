package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Poll.Interval != 2*time.Second || cfg.Poll.RedirectDelay != time.Second {
		t.Errorf("unexpected poll defaults: %+v", cfg.Poll)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no backend", func(c *Config) { c.BackendURL = "" }, ErrMissingBackendURL},
		{"zero interval", func(c *Config) { c.Poll.Interval = 0 }, ErrInvalidPollInterval},
		{"negative delay", func(c *Config) { c.Poll.RedirectDelay = -time.Second }, ErrInvalidRedirectDelay},
		{"negative errors", func(c *Config) { c.Poll.MaxConsecutiveErrors = -1 }, ErrInvalidErrorLimit},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, ErrUnknownDatabaseDriver},
		{"no dsn", func(c *Config) { c.Database.URL = "" }, ErrMissingDatabaseURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApplyEnv_BareNameWinsOverPublicName(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"NEXT_PUBLIC_BACKEND_URL": "https://public.example",
		"BACKEND_URL":             "https://internal.example",
		"NEXT_PUBLIC_BASE_URL":    "https://app.example",
		"DATABASE_DRIVER":         "postgres",
		"DATABASE_URL":            "postgres://u@h/db",
		"S3_BUCKET_NAME":          "reports",
		"ALLOWED_ORIGINS":         "https://a.example, https://b.example,",
		"POLL_INTERVAL":           "500ms",
		"POLL_MAX_ERRORS":         "0",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.BackendURL != "https://internal.example" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.BaseURL != "https://app.example" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.URL != "postgres://u@h/db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.S3.Bucket != "reports" {
		t.Errorf("S3.Bucket = %q", cfg.S3.Bucket)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Poll.Interval != 500*time.Millisecond {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
	if cfg.Poll.MaxConsecutiveErrors != 0 {
		t.Errorf("MaxConsecutiveErrors = %d", cfg.Poll.MaxConsecutiveErrors)
	}
}

func TestApplyEnv_BadDuration(t *testing.T) {
	t.Parallel()
	err := ApplyEnv(DefaultConfig(), envMap(map[string]string{"CACHE_TTL": "soon"}))
	if err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoadConfigFile_OverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	content := `
backend_url: https://backend.example
database:
  driver: postgres
  url: postgres://localhost/scanzie
poll:
  interval: 3s
  max_consecutive_errors: 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadConfigFile(path, cfg); err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.BackendURL != "https://backend.example" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.Poll.Interval != 3*time.Second || cfg.Poll.MaxConsecutiveErrors != 10 {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
	// untouched keys keep their defaults
	if cfg.Poll.RedirectDelay != DefaultRedirectDelay {
		t.Errorf("RedirectDelay = %v", cfg.Poll.RedirectDelay)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	t.Parallel()
	err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"), DefaultConfig())
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_ExplicitMissingPath(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestFindConfigFile_Explicit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(path); got != path {
		t.Errorf("FindConfigFile = %q, want %q", got, path)
	}
}
