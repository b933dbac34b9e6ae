package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

// Options control one cache-aside read. The zero value is not useful; start
// from DefaultOptions and override.
type Options struct {
	// ReadFromCache consults the cache before the loader.
	ReadFromCache bool
	// WriteToCache stores the loader's result under the key.
	WriteToCache bool
	// InvalidateBeforeRead deletes the key before doing anything else.
	InvalidateBeforeRead bool
	// DeleteAfterRead evicts the key after a cache hit. Used for
	// single-use entries such as login-challenge nonces.
	DeleteAfterRead bool
	// TTL applied on write-back. Entity managers supply their own default.
	TTL time.Duration
}

// DefaultOptions is plain read-through/write-back behaviour.
func DefaultOptions(ttl time.Duration) Options {
	return Options{
		ReadFromCache: true,
		WriteToCache:  true,
		TTL:           ttl,
	}
}

// Fetch is the cache-aside policy shared by the session, user and MFA
// managers. loader is the durable-store lookup; it returns nil for "no such
// record". Only loader errors propagate; every cache failure behaves as a
// miss.
func Fetch[T any](ctx context.Context, c *Client, key string, opts Options, loader func(ctx context.Context) (*T, error)) (*T, error) {
	if opts.InvalidateBeforeRead {
		c.Del(ctx, key)
	}

	if opts.ReadFromCache {
		if data := c.Get(ctx, key); data != nil {
			var cached T
			if err := json.Unmarshal(data, &cached); err != nil {
				// Corrupt entry: drop it and fall through to the loader.
				slogx.FromContext(ctx).Warn("cache entry corrupt, evicting", "key", key, "err", err)
				c.Del(ctx, key)
			} else {
				if opts.DeleteAfterRead {
					c.Del(ctx, key)
				}
				return &cached, nil
			}
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	if value != nil && opts.WriteToCache {
		if data, err := json.Marshal(value); err == nil {
			c.Set(ctx, key, data, opts.TTL)
		} else {
			slogx.FromContext(ctx).Warn("cache marshal failed", "key", key, "err", err)
		}
	}

	return value, nil
}

// Put writes a value directly, for write-through paths such as user
// creation where the caller already holds the fresh row.
func Put[T any](ctx context.Context, c *Client, key string, value *T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		slogx.FromContext(ctx).Warn("cache marshal failed", "key", key, "err", err)
		return
	}
	c.Set(ctx, key, data, ttl)
}
