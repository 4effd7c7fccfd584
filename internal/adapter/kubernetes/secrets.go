package kubernetes

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/port/secretstore"
)

var _ secretstore.Store = (*SecretStore)(nil)

// SecretStore keeps named secrets as v1 Secrets of type Opaque.
type SecretStore struct {
	client *Client
}

// NewSecretStore creates a secret store on client.
func NewSecretStore(client *Client) *SecretStore {
	return &SecretStore{client: client}
}

func (s *SecretStore) get(ctx context.Context, name string) (*Secret, error) {
	var sec Secret
	if err := s.client.call(ctx, http.MethodGet, s.client.path("secrets", name), "", nil, &sec); err != nil {
		return nil, err
	}
	return &sec, nil
}

func (s *SecretStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.get(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get secret %s: %w", name, err)
	}
	return true, nil
}

// Update applies a JSON merge patch: upserts set keys, deletes null them.
func (s *SecretStore) Update(ctx context.Context, name string, upserts map[string]string, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	values, err := decodeValues(upserts)
	if err != nil {
		return fmt.Errorf("patch secret %s: %w", name, err)
	}
	data := make(map[string]any, len(values)+len(deletes))
	for _, k := range deletes {
		data[k] = nil
	}
	for k, v := range values {
		data[k] = v
	}
	patch := map[string]any{"data": data}

	err = s.client.call(ctx, http.MethodPatch, s.client.path("secrets", name), contentMergePatch, patch, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("secret %s: %w", name, secretstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("patch secret %s: %w", name, err)
	}
	return nil
}

// Refresh replaces the secret's data, creating the secret when missing.
func (s *SecretStore) Refresh(ctx context.Context, name string, data map[string]string) error {
	values, err := decodeValues(data)
	if err != nil {
		return fmt.Errorf("refresh secret %s: %w", name, err)
	}
	sec := Secret{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata:   ObjectMeta{Name: name, Namespace: s.client.Namespace()},
		Type:       "Opaque",
		Data:       values,
	}

	current, err := s.get(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := s.client.call(ctx, http.MethodPost, s.client.path("secrets", ""), contentJSON, sec, nil); err != nil {
			return fmt.Errorf("create secret %s: %w", name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("get secret %s: %w", name, err)
	}

	sec.Metadata.ResourceVersion = current.Metadata.ResourceVersion
	sec.Metadata.Labels = current.Metadata.Labels
	if err := s.client.call(ctx, http.MethodPut, s.client.path("secrets", name), contentJSON, sec, nil); err != nil {
		return fmt.Errorf("replace secret %s: %w", name, err)
	}
	return nil
}

// decodeValues turns base64 store values into the raw bytes of Secret.Data,
// which the API encodes once more on the wire.
func decodeValues(in map[string]string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, domain.Invalid("secret."+k, "", "value is not base64 encoded")
		}
		out[k] = raw
	}
	return out, nil
}
