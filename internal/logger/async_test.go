package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func (h *recordingHandler) last() slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records[len(h.records)-1]
}

func record(level slog.Level, msg string) slog.Record {
	return slog.NewRecord(time.Now(), level, msg, 0)
}

func TestAsyncHandlerFlushesOnClose(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 1000, 2)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = ah.Handle(context.Background(), record(slog.LevelInfo, "launch"))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count(slog.LevelInfo); got != 500 {
		t.Fatalf("info records = %d, want 500", got)
	}
	if ah.DroppedCount() != 0 {
		t.Fatalf("dropped = %d", ah.DroppedCount())
	}
}

func TestAsyncHandlerDropsInfoButKeepsWarnings(t *testing.T) {
	inner := &recordingHandler{delay: 5 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1, 1)

	for range 30 {
		_ = ah.Handle(context.Background(), record(slog.LevelInfo, "flood"))
	}
	for range 5 {
		_ = ah.Handle(context.Background(), record(slog.LevelError, "pod stop failed"))
	}
	ah.Close()

	if ah.DroppedCount() == 0 {
		t.Fatal("expected info records to be dropped")
	}
	if got := inner.count(slog.LevelError); got != 5 {
		t.Fatalf("error records = %d, want 5", got)
	}
	last := inner.last()
	if last.Message != "async logger dropped records" {
		t.Fatalf("last message = %q", last.Message)
	}
}

func TestAsyncHandlerWritesAfterClose(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	ah.Close()
	ah.Close()

	if err := ah.Handle(context.Background(), record(slog.LevelInfo, "late")); err != nil {
		t.Fatal(err)
	}
	if got := inner.count(slog.LevelInfo); got != 1 {
		t.Fatalf("records after close = %d, want 1", got)
	}
}

func TestAsyncHandlerDerivedSharesQueue(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	derived := ah.WithAttrs([]slog.Attr{slog.String("component", "shift")})

	_ = derived.Handle(context.Background(), record(slog.LevelInfo, "derived"))
	ah.Close()

	if got := inner.count(slog.LevelInfo); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
}
