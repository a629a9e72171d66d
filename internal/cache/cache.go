// Package cache provides a small tag-aware cache for read paths. Entries
// expire after a TTL and can be dropped early by any of their tags.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under a key with a TTL and a set of tags.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	// InvalidateTags drops every entry carrying any of tags.
	InvalidateTags(ctx context.Context, tags ...string) error
}
