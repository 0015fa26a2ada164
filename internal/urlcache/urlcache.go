// Package urlcache is a Redis read-through cache for the redirect path.
// Short URL records are immutable, so entries never have to be invalidated;
// the TTL only bounds memory usage. Cache failures are logged and treated as
// misses, the storage stays the source of truth.
package urlcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tierlink/tierlink/internal/logger"
)

const keyPrefix = "tierlink:url:"

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis using the given DSN (redis://...).
func New(ctx context.Context, dsn string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Cache{
		client: client,
		ttl:    ttl,
	}, nil
}

// Get returns the cached original URL for the short key, if present.
func (c *Cache) Get(ctx context.Context, short string) (string, bool) {
	full, err := c.client.Get(ctx, keyPrefix+short).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Debugln("redirect cache read failed:", err)
		}
		return "", false
	}

	return full, true
}

// Set stores the short to original URL mapping.
func (c *Cache) Set(ctx context.Context, short, full string) {
	if err := c.client.Set(ctx, keyPrefix+short, full, c.ttl).Err(); err != nil {
		logger.Log.Debugln("redirect cache write failed:", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
