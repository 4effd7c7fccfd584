// Package secretstore defines the port for the external store that hands
// region credentials to launched workloads.
package secretstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the named secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Store manages named secrets made of string keys and values. Values are
// base64 encoded; a backend whose own wire format encodes binary data
// decodes them first so consumers read the original bytes.
type Store interface {
	// Exists reports whether the named secret exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Update sets the upserts and removes the deletes, leaving other keys
	// untouched.
	Update(ctx context.Context, name string, upserts map[string]string, deletes []string) error

	// Refresh replaces the whole content of the secret with data.
	Refresh(ctx context.Context, name string, data map[string]string) error
}
