package otel

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/CloudLaunch/internal/logger"
)

// HTTPMiddleware traces every request except the probes under skipPrefixes.
// Spans are named "METHOD /path" and carry the request id, so it has to be
// installed after the middleware that assigns one.
func HTTPMiddleware(operation string, skipPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		tagged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := logger.RequestID(r.Context()); id != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("request.id", id))
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(tagged, operation,
			otelhttp.WithFilter(func(r *http.Request) bool {
				for _, p := range skipPrefixes {
					if strings.HasPrefix(r.URL.Path, p) {
						return false
					}
				}
				return true
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
