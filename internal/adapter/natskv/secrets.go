package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CloudLaunch/internal/port/secretstore"
)

var _ secretstore.Store = (*SecretStore)(nil)

// SecretStore keeps named secrets in a KV bucket. A secret "name" is the
// marker key "name" plus one key "name.<key>" per entry.
type SecretStore struct {
	kv jetstream.KeyValue
}

// NewSecretStore creates a secret store on kv.
func NewSecretStore(kv jetstream.KeyValue) *SecretStore {
	return &SecretStore{kv: kv}
}

func (s *SecretStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.kv.Get(ctx, name)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get secret %s: %w", name, err)
	}
	return true, nil
}

func (s *SecretStore) Update(ctx context.Context, name string, upserts map[string]string, deletes []string) error {
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("secret %s: %w", name, secretstore.ErrNotFound)
	}
	for k, v := range upserts {
		if _, err := s.kv.PutString(ctx, entryKey(name, k), v); err != nil {
			return fmt.Errorf("put %s in secret %s: %w", k, name, err)
		}
	}
	for _, k := range deletes {
		if err := s.kv.Delete(ctx, entryKey(name, k)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("delete %s from secret %s: %w", k, name, err)
		}
	}
	return nil
}

func (s *SecretStore) Refresh(ctx context.Context, name string, data map[string]string) error {
	if _, err := s.kv.PutString(ctx, name, "1"); err != nil {
		return fmt.Errorf("create secret %s: %w", name, err)
	}
	existing, err := s.keys(ctx, name)
	if err != nil {
		return err
	}
	for k, v := range data {
		if _, err := s.kv.PutString(ctx, entryKey(name, k), v); err != nil {
			return fmt.Errorf("put %s in secret %s: %w", k, name, err)
		}
	}
	for _, key := range existing {
		if _, keep := data[key]; keep {
			continue
		}
		if err := s.kv.Delete(ctx, entryKey(name, key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("delete %s from secret %s: %w", key, name, err)
		}
	}
	return nil
}

// Data returns the entries of the named secret.
func (s *SecretStore) Data(ctx context.Context, name string) (map[string]string, error) {
	keys, err := s.keys(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		entry, err := s.kv.Get(ctx, entryKey(name, k))
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s from secret %s: %w", k, name, err)
		}
		out[k] = string(entry.Value())
	}
	return out, nil
}

// keys lists the entry keys of the named secret without the name prefix.
func (s *SecretStore) keys(ctx context.Context, name string) ([]string, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, name+".>")
	if err != nil {
		return nil, fmt.Errorf("list keys of secret %s: %w", name, err)
	}
	defer func() { _ = lister.Stop() }()

	prefix := len(name) + 1
	var out []string
	for k := range lister.Keys() {
		out = append(out, k[prefix:])
	}
	return out, nil
}

func entryKey(name, key string) string {
	return name + "." + key
}
