// Package natskv implements the cache and secret store ports on NATS
// JetStream KV.
package natskv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CloudLaunch/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// keyReplacer maps cache keys onto the KV key alphabet, which has no ':'.
var keyReplacer = strings.NewReplacer(":", ".", " ", "_")

// Cache is the level of the region cache shared by all replicas. Entry
// lifetime is the bucket's TTL.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// KVKey returns the bucket key under which key is stored.
func KVKey(key string) string {
	return keyReplacer.Replace(key)
}

// Get retrieves a value from the bucket. A missing key is a miss, not an error.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, KVKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value. TTL is managed at bucket level.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, KVKey(key), value)
	return err
}

// Delete removes a value. Deleting a missing key succeeds.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, KVKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
