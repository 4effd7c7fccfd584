package natskv_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CloudLaunch/internal/adapter/natskv"
	"github.com/Strob0t/CloudLaunch/internal/port/secretstore"
)

// testBucket creates a fresh KV bucket or skips without NATS_URL.
func testBucket(t *testing.T) jetstream.KeyValue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	bucket := "test-" + t.Name()
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	t.Cleanup(func() { _ = js.DeleteKeyValue(context.Background(), bucket) })
	return kv
}

func TestKVKey(t *testing.T) {
	tests := map[string]string{
		"region:7":      "region.7",
		"region:id:1":   "region.id.1",
		"plain":         "plain",
		"with space:42": "with_space.42",
	}
	for in, want := range tests {
		if got := natskv.KVKey(in); got != want {
			t.Errorf("KVKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCacheMissAndDelete(t *testing.T) {
	c := natskv.New(testBucket(t))
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}
	if err := c.Set(ctx, "region:7", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := c.Get(ctx, "region:7"); !ok || string(v) != "v" {
		t.Fatalf("Get(region:7) = %q, %v", v, ok)
	}
	if err := c.Delete(ctx, "region:7"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "region:7"); ok {
		t.Fatal("expected miss after delete")
	}
	if err := c.Delete(ctx, "never"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestSecretStoreLifecycle(t *testing.T) {
	s := natskv.NewSecretStore(testBucket(t))
	ctx := context.Background()
	const name = "cp-cloud-credentials"

	ok, err := s.Exists(ctx, name)
	if err != nil || ok {
		t.Fatalf("Exists before refresh = %v, %v", ok, err)
	}
	if err := s.Update(ctx, name, map[string]string{"1": "x"}, nil); !errors.Is(err, secretstore.ErrNotFound) {
		t.Fatalf("Update on missing secret = %v", err)
	}

	if err := s.Refresh(ctx, name, map[string]string{"1": "a", "2": "b"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, name, map[string]string{"3": "c"}, []string{"1"}); err != nil {
		t.Fatal(err)
	}
	data, err := s.Data(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || data["2"] != "b" || data["3"] != "c" {
		t.Errorf("data after update = %v", data)
	}

	if err := s.Refresh(ctx, name, map[string]string{"9": "z"}); err != nil {
		t.Fatal(err)
	}
	data, _ = s.Data(ctx, name)
	if len(data) != 1 || data["9"] != "z" {
		t.Errorf("data after refresh = %v", data)
	}
}
