package observability

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/flowkit/validation"
)

// Config enables tracing and metrics export for a service.
type Config struct {
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	Tracing        TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics        MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig controls the OTLP metric exporter.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// ApplyDefaults fills unset fields from the development defaults.
func (c *Config) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "flowkit"
	}
	tracer := DefaultTracerConfig(c.ServiceName)
	if c.ServiceVersion == "" {
		c.ServiceVersion = tracer.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = tracer.Environment
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = tracer.Endpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = tracer.SampleRate
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = tracer.Endpoint
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = DefaultMeterConfig(c.ServiceName).Interval
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// TracerConfig returns the tracer settings of c.
func (c *Config) TracerConfig() TracerConfig {
	return TracerConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
	}
}

// MeterConfig returns the meter settings of c.
func (c *Config) MeterConfig() MeterConfig {
	return MeterConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		Endpoint:       c.Metrics.Endpoint,
		Insecure:       c.Metrics.Insecure,
		Interval:       c.Metrics.Interval,
	}
}

// Setup initializes the enabled providers and returns a function that
// shuts them down. With nothing enabled it returns a no-op shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return stderrors.Join(errs...)
	}

	if cfg.Tracing.Enabled {
		tp, err := InitTracer(ctx, cfg.TracerConfig())
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, tp.Shutdown)
	}
	if cfg.Metrics.Enabled {
		mp, err := InitMeter(ctx, cfg.MeterConfig())
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
	}
	return shutdown, nil
}
