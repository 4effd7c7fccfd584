package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	cfotel "github.com/Strob0t/CloudLaunch/internal/adapter/otel"
	"github.com/Strob0t/CloudLaunch/internal/logger"
	"github.com/Strob0t/CloudLaunch/internal/resilience"
)

const headerRequestID = "X-Request-ID"

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cfotel.HTTPMiddleware(a.cfg.Logging.Service, "/health"))

	r.Get("/health", healthHandler(a.checks()))
	return r
}

// requestID reuses the caller's X-Request-ID or mints one, and stores it in
// the request context for logging and event headers.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// healthCheck returns "ok" or a short failure description.
type healthCheck func(ctx context.Context) string

func (a *app) checks() map[string]healthCheck {
	return map[string]healthCheck{
		"postgres": func(ctx context.Context) string {
			if err := a.pool.Ping(ctx); err != nil {
				return err.Error()
			}
			return "ok"
		},
		"nats": func(context.Context) string {
			if !a.queue.IsConnected() {
				return "disconnected"
			}
			return "ok"
		},
		"kubernetes": func(context.Context) string {
			if s := a.breaker.State(); s != resilience.StateClosed {
				return "breaker " + s.String()
			}
			return "ok"
		},
	}
}

// healthHandler runs every check and answers 503 when any of them fails.
func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	type healthStatus struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := healthStatus{Status: "ok", Checks: make(map[string]string, len(checks))}
		for name, check := range checks {
			res := check(ctx)
			status.Checks[name] = res
			if res != "ok" {
				status.Status = "degraded"
			}
		}

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
