// Package tiered layers the per-process region cache over the shared one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache reads through a local level into a shared level. The shared level
// is best effort: when it is unreachable reads fall back to the local level
// and the database, never to an error.
type Cache struct {
	local  cache.Cache
	shared cache.Cache
	// localTTL caps how long an entry lives in the local level, bounding
	// staleness after another replica invalidates it.
	localTTL time.Duration
}

// New creates a tiered cache.
func New(local, shared cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, localTTL: localTTL}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, err := c.local.Get(ctx, key); err == nil && found {
		return val, true, nil
	}

	val, found, err := c.shared.Get(ctx, key)
	if err != nil {
		slog.Warn("shared cache unavailable", "key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.local.Set(ctx, key, val, c.localTTL)
	return val, true, nil
}

// Set writes the shared level first. A shared failure is logged and the
// entry is kept locally only.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("shared cache set failed", "key", key, "error", err)
	}
	return c.local.Set(ctx, key, value, c.capTTL(ttl))
}

// Delete removes key from both levels. The local entry is dropped even when
// the shared delete fails; that failure is returned so callers can report
// the other replicas may serve a stale value until it expires.
func (c *Cache) Delete(ctx context.Context, key string) error {
	sharedErr := c.shared.Delete(ctx, key)
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return sharedErr
}

func (c *Cache) capTTL(ttl time.Duration) time.Duration {
	if c.localTTL > 0 && (ttl <= 0 || ttl > c.localTTL) {
		return c.localTTL
	}
	return ttl
}
