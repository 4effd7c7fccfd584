// Package logger configures slog for CloudLaunch and carries request and run
// ids through contexts.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/CloudLaunch/internal/config"
)

const (
	asyncBuffer  = 4096
	asyncWorkers = 2
)

// New returns a JSON logger on stdout. Every record carries the service
// name, plus request_id and run_id when its context has them. With
// cfg.Async records are written by background workers; call Close on
// shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncBuffer, asyncWorkers)
		handler, closer = async, async
	}

	// Context attributes are resolved before records reach the async queue.
	handler = &contextHandler{inner: handler}

	return slog.New(handler).With("service", cfg.Service), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
