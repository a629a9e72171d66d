package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/scanzie/smeal/internal/cache"
	"github.com/scanzie/smeal/internal/config"
	"github.com/scanzie/smeal/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.URL = filepath.Join(t.TempDir(), "scanzie.db")
	cfg.S3.Bucket = ""
	cfg.RedisURL = ""
	return cfg
}

func TestNewApplication_Wiring(t *testing.T) {
	a, err := NewApplication(context.Background(), testConfig(t), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	defer a.Close()

	if a.Store == nil || a.Gateway == nil || a.Auth == nil || a.Backend == nil || a.Orchestrator == nil {
		t.Fatalf("missing services: %+v", a)
	}
	if _, ok := a.Cache.(*cache.MemoryCache); !ok {
		t.Errorf("expected in-process cache without REDIS_URL, got %T", a.Cache)
	}
	if a.Archive != nil {
		t.Error("archive should be disabled without a bucket")
	}
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackendURL = ""
	if _, err := NewApplication(context.Background(), cfg, nil); !errors.Is(err, config.ErrMissingBackendURL) {
		t.Fatalf("expected ErrMissingBackendURL, got %v", err)
	}
}

func TestApplication_CloseIsIdempotent(t *testing.T) {
	a, err := NewApplication(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
