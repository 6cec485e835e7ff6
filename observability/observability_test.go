package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("test-service")
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetrics_Noop(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordRunStart(ctx, "etl")
	metrics.RecordRunEnd(ctx, "etl", "success", time.Second)
	metrics.RecordStep(ctx, "etl", "extract", "succeeded", 10*time.Millisecond)
	metrics.RecordAttempts(ctx, "etl", "extract", 2)
	metrics.RecordHookError(ctx, "etl", "notify")
	metrics.RecordTicks(ctx, "hourly", "requested", 0)
}

func TestMetrics_Recorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	metrics.RecordStep(ctx, "etl", "extract", "succeeded", time.Millisecond)
	metrics.RecordStep(ctx, "etl", "load", "failed", time.Millisecond)
	metrics.RecordTicks(ctx, "hourly", "requested", 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	if sums[MetricStepTotal] != 2 {
		t.Errorf("expected 2 steps, got %d", sums[MetricStepTotal])
	}
	if sums[MetricScheduleTicks] != 3 {
		t.Errorf("expected 3 ticks, got %d", sums[MetricScheduleTicks])
	}
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), SpanStep)
	defer span.End()
	if span == nil || ctx == nil {
		t.Fatal("expected span and context")
	}
	if SpanFromContext(context.Background()) == nil {
		t.Fatal("expected non-nil noop span")
	}
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestSetSpanAttribute(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "test-attrs")
	SetSpanAttribute(ctx, AttrStep, "extract")
	SetSpanAttribute(ctx, AttrAttempts, 2)
	SetSpanAttribute(ctx, "int64-key", int64(100))
	SetSpanAttribute(ctx, "float-key", 3.14)
	SetSpanAttribute(ctx, "bool-key", true)
	SetSpanAttribute(ctx, "slice-key", []string{"a", "b"})
	SetSpanAttribute(ctx, "unsupported-key", struct{}{})
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if n := len(ended[0].Attributes()); n != 6 {
		t.Errorf("expected 6 attributes, got %d", n)
	}
}

func TestSetSpanError(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "test-error")
	SetSpanError(ctx, fmt.Errorf("test error"))
	span.End()

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status())
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected one exception event, got %d", len(s.Events()))
	}
}

func TestSetSpanNoSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "key", "value")
	SetSpanError(ctx, fmt.Errorf("no span error"))
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.ServiceName != "flowkit" || cfg.Tracing.SampleRate != 1.0 || cfg.Metrics.Interval != 15*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.TracerConfig().Endpoint != "localhost:4318" || cfg.MeterConfig().ServiceName != "flowkit" {
		t.Error("expected derived configs to carry settings")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"tracing without endpoint", Config{Tracing: TracingConfig{Enabled: true}}, true},
		{"sample rate too high", Config{Tracing: TracingConfig{SampleRate: 2}}, true},
		{"metrics enabled", Config{Metrics: MetricsConfig{Enabled: true, Endpoint: "collector:4318"}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSetup_NothingEnabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestInitTracer(t *testing.T) {
	for _, rate := range []float64{1.0, 0.0, 0.5} {
		t.Run(fmt.Sprintf("rate %.1f", rate), func(t *testing.T) {
			cfg := DefaultTracerConfig("test")
			cfg.SampleRate = rate
			tp, err := InitTracer(context.Background(), cfg)
			if err != nil {
				t.Fatalf("InitTracer() error = %v", err)
			}
			defer tp.Shutdown(context.Background())
		})
	}
}

func TestInitMeter(t *testing.T) {
	mp, err := InitMeter(context.Background(), DefaultMeterConfig("test"))
	if err != nil {
		t.Fatalf("InitMeter() error = %v", err)
	}
	defer mp.Shutdown(context.Background())
}
