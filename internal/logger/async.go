package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a logger.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncQueue is shared by an AsyncHandler and every handler derived from it
// through WithAttrs and WithGroup.
type asyncQueue struct {
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	ch      chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
}

type queued struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler writes records from background workers. Debug and info
// records are dropped when the buffer is full; warnings and errors wait for
// room, since they usually describe a failed launch or a leaked pod.
type AsyncHandler struct {
	inner slog.Handler
	q     *asyncQueue
}

// NewAsyncHandler starts workers draining a buffer of size records.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	q := &asyncQueue{ch: make(chan queued, size)}
	for range workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for item := range q.ch {
				_ = item.h.Handle(context.Background(), item.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues rec. After Close the record is written synchronously.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.q.mu.RLock()
	defer h.q.mu.RUnlock()
	if h.q.closed {
		return h.inner.Handle(ctx, rec)
	}

	item := queued{h: h.inner, rec: rec.Clone()}
	if rec.Level >= slog.LevelWarn {
		h.q.ch <- item
		return nil
	}
	select {
	case h.q.ch <- item:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns the number of records discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close drains the buffer and stops the workers. When records were dropped
// a final warning with the count is written. Close is idempotent.
func (h *AsyncHandler) Close() {
	h.q.mu.Lock()
	if h.q.closed {
		h.q.mu.Unlock()
		return
	}
	h.q.closed = true
	close(h.q.ch)
	h.q.mu.Unlock()
	h.q.wg.Wait()

	if n := h.q.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
