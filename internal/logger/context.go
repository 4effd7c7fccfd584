package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey int

const (
	requestIDKey contextKey = iota
	runIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRunID returns a new context carrying the run being launched or shifted.
func WithRunID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID extracts the run ID from the context.
func RunID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(runIDKey).(int64)
	return id, ok
}

// contextHandler adds request_id and run_id attributes from the record's
// context.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if ctx != nil {
		if id := RequestID(ctx); id != "" {
			rec.AddAttrs(slog.String("request_id", id))
		}
		if id, ok := RunID(ctx); ok {
			rec.AddAttrs(slog.Int64("run_id", id))
		}
	}
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
