package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares cached entries between service instances. Each tag is a
// Redis set of the keys carrying it.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects using a redis:// URL, falling back to treating it
// as a plain host:port address.
func NewRedisCache(ctx context.Context, redisURL, prefix string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if prefix == "" {
		prefix = "scanzie:cache:"
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) key(k string) string { return c.prefix + "k:" + k }
func (c *RedisCache) tag(t string) string { return c.prefix + "t:" + t }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, c.key(key), value, ttl)
		for _, t := range tags {
			p.SAdd(ctx, c.tag(t), c.key(key))
			if ttl > 0 {
				p.Expire(ctx, c.tag(t), ttl)
			}
		}
		return nil
	})
	return err
}

func (c *RedisCache) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, t := range tags {
		members, err := c.client.SMembers(ctx, c.tag(t)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		keys := append(members, c.tag(t))
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
