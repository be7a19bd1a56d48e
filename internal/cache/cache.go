// Package cache is a small Redis-backed response cache. Provider index
// payloads are large and change slowly, so resolutions reuse them for a
// TTL instead of refetching per trigger.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis and verifies the connection. ttl applies to
// every Set.
func New(redisURL, password string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

// Get returns the cached payload for key. Any Redis failure is a miss;
// callers fall through to the live fetch.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores the payload under key for the configured TTL. Failures are
// ignored; the cache is best effort.
func (c *Cache) Set(ctx context.Context, key string, val []byte) {
	c.rdb.Set(ctx, key, val, c.ttl) //nolint:errcheck
}
