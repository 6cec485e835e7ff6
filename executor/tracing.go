package executor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/observability"
)

func startRunSpan(ctx context.Context, runID, pipeline string) (context.Context, func(*RunResult)) {
	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, runID)
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, pipeline)
	return ctx, func(result *RunResult) {
		endSpan(span, result)
	}
}

func endSpan(span trace.Span, result *RunResult) {
	defer span.End()
	if result == nil {
		return
	}
	span.SetAttributes(
		attribute.String(observability.AttrStatus, string(result.Status)),
		attribute.Int64(observability.AttrDurationMs, result.Duration.Milliseconds()),
	)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, string(result.Reason))
	}
}

// startHookSpan opens a span around the dispatch of one hook event.
func startHookSpan(ctx context.Context, ev hook.Event) (context.Context, trace.Span) {
	ctx, span := observability.StartSpan(ctx, observability.SpanHook)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, ev.RunID)
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, ev.Pipeline)
	observability.SetSpanAttribute(ctx, "hook.scope", ev.Scope.String())
	observability.SetSpanAttribute(ctx, observability.AttrStatus, string(ev.Outcome))
	return ctx, span
}
