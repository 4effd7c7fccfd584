// Package ristretto is the per-process level of the region cache.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// avgEntryBytes is the typical size of a cached region document; it sizes
// the admission counters.
const avgEntryBytes = 1 << 10

// Cache is a size-bounded in-process cache. Entries are costed by their
// byte length only.
type Cache struct {
	c          *ristretto.Cache[string, []byte]
	defaultTTL time.Duration
}

// New sizes the cache from cfg.L1MaxSizeMB. Set calls without a TTL use
// cfg.L1TTL.
func New(cfg config.Cache) (*Cache, error) {
	maxCost := cfg.L1MaxSizeMB << 20
	if maxCost <= 0 {
		maxCost = 16 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        10 * (maxCost / avgEntryBytes),
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, defaultTTL: cfg.L1TTL}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	return val, found, nil
}

// Set waits for the write to be applied, so a region saved and then loaded
// is never served stale. Entries too large for the cache are silently not
// admitted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
