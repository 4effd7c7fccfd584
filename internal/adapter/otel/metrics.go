package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "cloudlaunch"

// Metrics holds all CloudLaunch metric instruments.
type Metrics struct {
	LaunchesStarted  metric.Int64Counter
	LaunchesRejected metric.Int64Counter
	ShiftsPerformed  metric.Int64Counter
	ShiftsSkipped    metric.Int64Counter
	EstimatedPrice   metric.Float64Histogram
	SecretSyncErrors metric.Int64Counter
	BreakerChanges   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.LaunchesStarted, err = meter.Int64Counter("cloudlaunch.launches.started",
		metric.WithDescription("Number of runs launched"))
	if err != nil {
		return nil, err
	}

	m.LaunchesRejected, err = meter.Int64Counter("cloudlaunch.launches.rejected",
		metric.WithDescription("Number of launch requests rejected before execution"))
	if err != nil {
		return nil, err
	}

	m.ShiftsPerformed, err = meter.Int64Counter("cloudlaunch.shifts.performed",
		metric.WithDescription("Number of runs restarted in another region"))
	if err != nil {
		return nil, err
	}

	m.ShiftsSkipped, err = meter.Int64Counter("cloudlaunch.shifts.skipped",
		metric.WithDescription("Number of shift attempts that found no eligible region or run"))
	if err != nil {
		return nil, err
	}

	m.EstimatedPrice, err = meter.Float64Histogram("cloudlaunch.launch.estimated_price",
		metric.WithDescription("Estimated hourly price of launched runs"))
	if err != nil {
		return nil, err
	}

	m.SecretSyncErrors, err = meter.Int64Counter("cloudlaunch.secret.sync_errors",
		metric.WithDescription("Number of failed credential secret updates"))
	if err != nil {
		return nil, err
	}

	m.BreakerChanges, err = meter.Int64Counter("cloudlaunch.kubernetes.breaker_changes",
		metric.WithDescription("Number of cluster API circuit breaker transitions, by target state"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
