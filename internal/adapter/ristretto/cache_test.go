package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/adapter/ristretto"
	"github.com/Strob0t/CloudLaunch/internal/config"
)

func newCache(t *testing.T, cfg config.Cache) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCacheSetGetDelete(t *testing.T) {
	c := newCache(t, config.Cache{L1MaxSizeMB: 1, L1TTL: time.Minute})
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "region:1"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "region:1", []byte(`{"id":1}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, ok, err := c.Get(ctx, "region:1")
	if err != nil || !ok || string(val) != `{"id":1}` {
		t.Fatalf("Get after Set = %q, %v, %v", val, ok, err)
	}

	_ = c.Delete(ctx, "region:1")
	if _, ok, _ := c.Get(ctx, "region:1"); ok {
		t.Error("expected miss after Delete")
	}
}

func TestCacheDefaultTTLExpires(t *testing.T) {
	c := newCache(t, config.Cache{L1MaxSizeMB: 1, L1TTL: 50 * time.Millisecond})
	ctx := context.Background()

	_ = c.Set(ctx, "region:2", []byte("x"), 0)
	if _, ok, _ := c.Get(ctx, "region:2"); !ok {
		t.Fatal("expected hit right after Set")
	}
	time.Sleep(1500 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "region:2"); ok {
		t.Error("expected entry to expire with the default TTL")
	}
}

func TestCacheRejectsOversizedEntry(t *testing.T) {
	c := newCache(t, config.Cache{L1MaxSizeMB: 1, L1TTL: time.Minute})
	ctx := context.Background()

	_ = c.Set(ctx, "huge", make([]byte, 2<<20), time.Minute)
	if _, ok, _ := c.Get(ctx, "huge"); ok {
		t.Error("entry larger than the cache should not be admitted")
	}
}
