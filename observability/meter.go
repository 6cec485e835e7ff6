package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/flowkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns defaults for local development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes and installs the global meter provider.
// The returned provider must be shut down on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric names.
const (
	MetricRunTotal      = "flowkit.run.total"
	MetricRunDuration   = "flowkit.run.duration"
	MetricRunActive     = "flowkit.run.active"
	MetricStepTotal     = "flowkit.step.total"
	MetricStepDuration  = "flowkit.step.duration"
	MetricStepAttempts  = "flowkit.step.attempts"
	MetricHookErrors    = "flowkit.hook.errors"
	MetricScheduleTicks = "flowkit.schedule.ticks"
)

// Metrics holds the instruments recorded for pipeline runs.
type Metrics struct {
	runTotal      metric.Int64Counter
	runDuration   metric.Float64Histogram
	runActive     metric.Int64UpDownCounter
	stepTotal     metric.Int64Counter
	stepDuration  metric.Float64Histogram
	stepAttempts  metric.Int64Histogram
	hookErrors    metric.Int64Counter
	scheduleTicks metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runTotal, err := meter.Int64Counter(MetricRunTotal,
		metric.WithDescription("Total number of finished pipeline runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRunTotal, err)
	}

	runDuration, err := meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricRunDuration, err)
	}

	runActive, err := meter.Int64UpDownCounter(MetricRunActive,
		metric.WithDescription("Number of runs in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricRunActive, err)
	}

	stepTotal, err := meter.Int64Counter(MetricStepTotal,
		metric.WithDescription("Total number of finished steps by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricStepTotal, err)
	}

	stepDuration, err := meter.Float64Histogram(MetricStepDuration,
		metric.WithDescription("Duration of steps in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricStepDuration, err)
	}

	stepAttempts, err := meter.Int64Histogram(MetricStepAttempts,
		metric.WithDescription("Compute attempts per step"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricStepAttempts, err)
	}

	hookErrors, err := meter.Int64Counter(MetricHookErrors,
		metric.WithDescription("Hook callbacks that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricHookErrors, err)
	}

	scheduleTicks, err := meter.Int64Counter(MetricScheduleTicks,
		metric.WithDescription("Schedule ticks by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricScheduleTicks, err)
	}

	return &Metrics{
		runTotal:      runTotal,
		runDuration:   runDuration,
		runActive:     runActive,
		stepTotal:     stepTotal,
		stepDuration:  stepDuration,
		stepAttempts:  stepAttempts,
		hookErrors:    hookErrors,
		scheduleTicks: scheduleTicks,
	}, nil
}

// RecordRunStart increments the active run count.
func (m *Metrics) RecordRunStart(ctx context.Context, pipeline string) {
	m.runActive.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
}

// RecordRunEnd decrements active runs and records the finished run.
func (m *Metrics) RecordRunEnd(ctx context.Context, pipeline, status string, duration time.Duration) {
	m.runActive.Add(ctx, -1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
	))
}

// RecordStep records a step reaching a terminal status.
func (m *Metrics) RecordStep(ctx context.Context, pipeline, step, status string, duration time.Duration) {
	m.stepTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("step", step),
		attribute.String("status", status),
	))
	m.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("step", step),
	))
}

// RecordAttempts records how many compute attempts a step used.
func (m *Metrics) RecordAttempts(ctx context.Context, pipeline, step string, attempts int) {
	m.stepAttempts.Record(ctx, int64(attempts), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("step", step),
	))
}

// RecordHookError records a failed hook callback.
func (m *Metrics) RecordHookError(ctx context.Context, pipeline, hook string) {
	m.hookErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("hook", hook),
	))
}

// RecordTicks records n schedule ticks with the given outcome
// (requested, skipped, already_fired).
func (m *Metrics) RecordTicks(ctx context.Context, schedule, outcome string, n int) {
	if n == 0 {
		return
	}
	m.scheduleTicks.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("schedule", schedule),
		attribute.String("outcome", outcome),
	))
}
