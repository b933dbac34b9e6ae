// Package cache wraps the Redis client with the failure policy every
// manager shares: cache errors are logged and degrade to misses, they never
// fail the surrounding operation. The durable store stays authoritative.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nocturnehq/gatekeep/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb redis.UniversalClient
}

func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Key builds the shared "<entity>:<context>:<id>" namespace used by every
// entity manager.
func Key(entity, context, id string) string {
	return fmt.Sprintf("%s:%s:%s", entity, context, id)
}

// Get returns the raw cached bytes, or nil on a miss. Backend errors are
// logged and reported as misses.
func (c *Client) Get(ctx context.Context, key string) []byte {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slogx.FromContext(ctx).Error("cache get failed", "key", key, "err", err)
		}
		return nil
	}
	return data
}

// Set stores value under key with the given TTL. Failures are logged and
// swallowed; the caller already holds the authoritative value.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		slogx.FromContext(ctx).Error("cache set failed", "key", key, "err", err)
	}
}

// Del removes key. Failures are logged and swallowed.
func (c *Client) Del(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		slogx.FromContext(ctx).Error("cache del failed", "key", key, "err", err)
	}
}

// Exists reports whether key is present. Backend errors count as absent.
func (c *Client) Exists(ctx context.Context, key string) bool {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		slogx.FromContext(ctx).Error("cache exists failed", "key", key, "err", err)
		return false
	}
	return n > 0
}

// Ping verifies the cache backend is reachable. Used by readiness probes
// only; everywhere else cache availability is best-effort.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
