// Package cache defines the port for the region read cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Cache stores opaque values under string keys. A miss is reported through
// the bool result, never as an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key joins a namespace and a numeric id into a cache key, e.g. "region:7".
func Key(namespace string, id int64) string {
	return namespace + ":" + strconv.FormatInt(id, 10)
}

// GetJSON loads key and decodes it into a T. Undecodable entries are
// reported as misses so a schema change never poisons readers.
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, nil
	}
	return &v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
