package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time
	tags    []string
}

const (
	DefaultMaxEntries = 10000
	sweepInterval     = time.Minute
)

// MemoryCache is an in-process Cache. Expired entries are dropped on read
// and swept from Set at most once per sweepInterval. At MaxEntries the
// entry closest to expiry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	byTag      map[string]map[string]struct{}
	maxEntries int
	lastSweep  time.Time
	now        func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMaxEntries bounds the number of entries. n <= 0 keeps the default.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]memEntry),
		byTag:      make(map[string]map[string]struct{}),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.removeLocked(key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
	now := c.now()
	if now.Sub(c.lastSweep) >= sweepInterval || len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
	}
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	e := memEntry{value: append([]byte(nil), value...), tags: append([]string(nil), tags...)}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	c.entries[key] = e
	for _, t := range tags {
		keys, ok := c.byTag[t]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[t] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) InvalidateTags(_ context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range tags {
		for key := range c.byTag[t] {
			c.removeLocked(key)
		}
		delete(c.byTag, t)
	}
	return nil
}

// Len reports the number of live and not yet collected entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	c.lastSweep = now
	for key, e := range c.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			c.removeLocked(key)
		}
	}
}

// evictLocked drops the entry expiring soonest; entries without a TTL go
// last.
func (c *MemoryCache) evictLocked() {
	var (
		victim  string
		expires time.Time
		found   bool
	)
	for key, e := range c.entries {
		if !found || (!e.expires.IsZero() && (expires.IsZero() || e.expires.Before(expires))) {
			victim, expires, found = key, e.expires, true
		}
	}
	if found {
		c.removeLocked(victim)
	}
}

func (c *MemoryCache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, t := range e.tags {
		if keys, ok := c.byTag[t]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byTag, t)
			}
		}
	}
}
