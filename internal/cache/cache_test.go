package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryCache_GetSet(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute, "t1"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 60*time.Second)
	now = now.Add(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired too early")
	}
	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not collected")
	}
}

func TestMemoryCache_SetSweepsExpiredEntries(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache(WithMaxEntries(20000))
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 10000 {
		_ = c.Set(ctx, fmt.Sprintf("user-analysis:u1:page:20:%d", i), []byte("p"), time.Minute, "user-analysis:u1")
	}
	now = now.Add(time.Hour)
	_ = c.Set(ctx, "fresh", []byte("v"), time.Minute)

	if got := c.Len(); got != 1 {
		t.Fatalf("Len = %d after all other entries expired, want 1", got)
	}
	c.mu.Lock()
	tags := len(c.byTag)
	c.mu.Unlock()
	if tags != 0 {
		t.Errorf("tag index still holds %d tags", tags)
	}
}

func TestMemoryCache_MaxEntriesEvictsSoonestExpiry(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache(WithMaxEntries(3))
	ctx := context.Background()

	_ = c.Set(ctx, "forever", []byte("v"), 0)
	_ = c.Set(ctx, "short", []byte("v"), time.Minute)
	_ = c.Set(ctx, "long", []byte("v"), time.Hour)
	_ = c.Set(ctx, "new", []byte("v"), time.Hour)

	if got := c.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Error("entry closest to expiry should have been evicted")
	}
	for _, k := range []string{"forever", "long", "new"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Errorf("%q evicted", k)
		}
	}
}

func TestMemoryCache_InvalidateTags(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "list:u1", []byte("a"), time.Minute, "user-analysis:u1")
	_ = c.Set(ctx, "detail:u1:x", []byte("b"), time.Minute, "analysis-details:u1", "analysis-details:u1:x")
	_ = c.Set(ctx, "list:u2", []byte("c"), time.Minute, "user-analysis:u2")

	if err := c.InvalidateTags(ctx, "analysis-details:u1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "detail:u1:x"); ok {
		t.Error("detail entry should be gone")
	}
	if _, ok, _ := c.Get(ctx, "list:u1"); !ok {
		t.Error("list entry has a different tag and should survive")
	}

	_ = c.InvalidateTags(ctx, "user-analysis:u1")
	if _, ok, _ := c.Get(ctx, "list:u2"); !ok {
		t.Error("other user's entry must survive")
	}
}

func TestMemoryCache_SetReplacesTags(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v1"), time.Minute, "old")
	_ = c.Set(ctx, "k", []byte("v2"), time.Minute, "new")
	_ = c.InvalidateTags(ctx, "old")
	if v, ok, _ := c.Get(ctx, "k"); !ok || string(v) != "v2" {
		t.Fatalf("re-set entry should no longer carry the old tag, got %q %v", v, ok)
	}
}

// Redis tests need a live server.
func newTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewRedisCache(context.Background(), url, "scanzie-test:"+uuid.New().String()+":")
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_SetGetInvalidate(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute, "tag"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := c.Get(ctx, "k"); err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if err := c.InvalidateTags(ctx, "tag"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after invalidation")
	}
}
