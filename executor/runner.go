package executor

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/resilience"
)

// StepRunner executes one leaf step. inputs holds the resolved input
// values, resources the handles the step requires.
type StepRunner interface {
	RunStep(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error)
}

// StepRunnerFunc adapts a function to StepRunner.
type StepRunnerFunc func(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error)

// RunStep calls f.
func (f StepRunnerFunc) RunStep(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error) {
	return f(ctx, step, inputs, resources)
}

// LocalRunner calls task compute functions in-process, retrying according
// to the task's retry policy.
type LocalRunner struct {
	Log *logger.Logger
}

// RunStep implements StepRunner.
func (r LocalRunner) RunStep(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error) {
	task, ok := step.Task()
	if !ok {
		return nil, errors.Schema("step %s is not a task", step.Handle)
	}

	info, _ := RunInfoFromContext(ctx)
	log := logger.OrComponent(r.Log, "executor").WithContext(ctx).
		WithFields(logger.Fields(logger.FieldStep, step.Handle, "task", task.Name()))

	cfg := resilience.RetryConfig{MaxAttempts: 1}
	if policy, ok := task.Retry(); ok {
		cfg = resilience.RetryConfig{
			MaxAttempts:    policy.MaxAttempts,
			InitialBackoff: policy.Backoff,
			MaxBackoff:     policy.MaxBackoff,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				log.Warn("Retrying step", logger.MergeWithError(logger.Fields(
					"attempt", attempt, "backoff", backoff.String()), err))
			},
		}
	}

	out, attempts, err := resilience.Retry(ctx, cfg, func(ctx context.Context, attempt int) (dag.Outputs, error) {
		inv := &dag.Invocation{
			RunID:     info.RunID,
			Step:      step.Handle,
			Inputs:    maps.Clone(inputs),
			Config:    step.Config,
			Resources: resources,
			Log:       log,
		}
		return compute(ctx, task, inv)
	})
	ReportAttempts(ctx, attempts)
	return out, err
}

func compute(ctx context.Context, task *dag.Task, inv *dag.Invocation) (out dag.Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Compute(ctx, inv)
}
