// Package cache provides an optional Redis-backed cache for rendered public
// pages. A nil *PageCache is a valid no-op, so callers never branch on
// whether caching is configured.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "penlight:page:"

// PageCache stores rendered HTML keyed by request path and query.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at url (e.g. redis://localhost:6379/0). An empty
// url returns a nil cache, which disables caching.
func New(url string, ttl time.Duration) (*PageCache, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PageCache{client: client, ttl: ttl}, nil
}

// Enabled reports whether caching is active.
func (c *PageCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get returns a cached page body.
func (c *PageCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a rendered page body.
func (c *PageCache) Set(ctx context.Context, key string, body []byte) {
	if !c.Enabled() {
		return
	}
	_ = c.client.Set(ctx, keyPrefix+key, body, c.ttl).Err()
}

// Invalidate drops every cached page. Called after any article mutation;
// the cached surface is small enough that selective invalidation is not
// worth its complexity.
func (c *PageCache) Invalidate(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}

// Close releases the Redis connection.
func (c *PageCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
