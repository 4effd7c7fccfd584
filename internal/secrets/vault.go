// Package secrets holds the process secrets and the cipher protecting region
// credentials at rest.
package secrets

import (
	"fmt"
	"sync"
)

// Loader retrieves secrets from one source.
type Loader func() (map[string]string, error)

// Vault holds secret values in memory. Values from later loaders override
// earlier ones.
type Vault struct {
	mu      sync.RWMutex
	values  map[string]string
	loaders []Loader
}

// NewVault creates a Vault and loads it once.
func NewVault(loaders ...Loader) (*Vault, error) {
	v := &Vault{loaders: loaders}
	if err := v.Reload(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Reload runs every loader and swaps in the merged values. On error the
// existing values are kept.
func (v *Vault) Reload() error {
	merged := map[string]string{}
	for _, load := range v.loaders {
		vals, err := load()
		if err != nil {
			return err
		}
		for k, val := range vals {
			merged[k] = val
		}
	}
	v.mu.Lock()
	v.values = merged
	v.mu.Unlock()
	return nil
}
