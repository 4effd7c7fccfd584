package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cloudlaunch"

// StartLaunchSpan starts a span for a launch request.
func StartLaunchSpan(ctx context.Context, image, owner string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "launch",
		trace.WithAttributes(
			attribute.String("run.image", image),
			attribute.String("run.owner", owner),
		),
	)
}

// StartShiftSpan starts a span for a region shift attempt.
func StartShiftSpan(ctx context.Context, runID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "shift",
		trace.WithAttributes(
			attribute.Int64("run.id", runID),
		),
	)
}

// StartSecretRefreshSpan starts a span for a full credential secret rebuild.
func StartSecretRefreshSpan(ctx context.Context, secretName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "secret.refresh",
		trace.WithAttributes(
			attribute.String("secret.name", secretName),
		),
	)
}
