package executor

import (
	"context"
	"time"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

// WithTracing wraps a StepRunner with OpenTelemetry span creation.
// Each step gets a span named observability.SpanStep.
func WithTracing(inner StepRunner) StepRunner {
	return StepRunnerFunc(func(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error) {
		ctx, span := observability.StartSpan(ctx, observability.SpanStep)
		defer span.End()

		observability.SetSpanAttribute(ctx, observability.AttrStep, step.Handle)
		observability.SetSpanAttribute(ctx, observability.AttrTask, step.Definition.Name())
		if info, ok := RunInfoFromContext(ctx); ok {
			observability.SetSpanAttribute(ctx, observability.AttrRunID, info.RunID)
			observability.SetSpanAttribute(ctx, observability.AttrPipeline, info.Pipeline)
		}

		out, err := inner.RunStep(ctx, step, inputs, resources)
		if n := attemptsFrom(ctx); n > 0 {
			observability.SetSpanAttribute(ctx, observability.AttrAttempts, n)
		}
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		return out, err
	})
}

// WithMetrics wraps a StepRunner with step count, duration and attempt metrics.
func WithMetrics(inner StepRunner, metrics *observability.Metrics) StepRunner {
	return StepRunnerFunc(func(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error) {
		start := time.Now()
		out, err := inner.RunStep(ctx, step, inputs, resources)
		duration := time.Since(start)

		info, _ := RunInfoFromContext(ctx)
		status := string(StepSucceeded)
		if err != nil {
			status = string(StepFailed)
		}
		metrics.RecordStep(ctx, info.Pipeline, step.Handle, status, duration)
		if n := attemptsFrom(ctx); n > 0 {
			metrics.RecordAttempts(ctx, info.Pipeline, step.Handle, n)
		}
		return out, err
	})
}

// WithLogging wraps a StepRunner with per-step logging.
func WithLogging(inner StepRunner, log *logger.Logger) StepRunner {
	log = logger.OrComponent(log, "executor")
	return StepRunnerFunc(func(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error) {
		start := time.Now()
		out, err := inner.RunStep(ctx, step, inputs, resources)

		fields := logger.MergeWithDuration(logger.Fields(logger.FieldStep, step.Handle), time.Since(start))
		if err != nil {
			log.WithContext(ctx).Error("Step failed", logger.MergeWithError(fields, err))
		} else {
			log.WithContext(ctx).Debug("Step completed", fields)
		}
		return out, err
	})
}
