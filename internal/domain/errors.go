// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a request conflicts with existing state
// (provider mismatch, tool region constraint, dependent records).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed or missing input.
var ErrValidation = errors.New("validation failed")

// ErrPermission indicates the acting principal may not use the resource.
var ErrPermission = errors.New("permission denied")

// ValidationError names the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, value, format string, args ...any) error {
	return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}
