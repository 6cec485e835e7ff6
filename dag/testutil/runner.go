package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/kbukum/flowkit/dag"
)

// StepRunner matches executor.StepRunner.
type StepRunner interface {
	RunStep(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error)
}

// RecordingRunner records the steps it runs and can fail chosen steps.
// Steps it does not fail go to Inner, or straight to the task's compute
// function when Inner is nil.
type RecordingRunner struct {
	Inner StepRunner

	mu       sync.Mutex
	order    []string
	inputs   map[string]map[string]any
	failures map[string]error
	hold     map[string]chan struct{}
}

// NewRecordingRunner creates a runner delegating to inner, which may be nil.
func NewRecordingRunner(inner StepRunner) *RecordingRunner {
	return &RecordingRunner{
		Inner:    inner,
		inputs:   make(map[string]map[string]any),
		failures: make(map[string]error),
		hold:     make(map[string]chan struct{}),
	}
}

// Fail makes the step with handle return err.
func (r *RecordingRunner) Fail(handle string, err error) *RecordingRunner {
	r.mu.Lock()
	r.failures[handle] = err
	r.mu.Unlock()
	return r
}

// Hold makes the step with handle block until its context is done.
// The returned channel is closed once the step has started.
func (r *RecordingRunner) Hold(handle string) <-chan struct{} {
	ch := make(chan struct{})
	r.mu.Lock()
	r.hold[handle] = ch
	r.mu.Unlock()
	return ch
}

// RunStep implements the executor's StepRunner.
func (r *RecordingRunner) RunStep(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (dag.Outputs, error) {
	r.mu.Lock()
	r.order = append(r.order, step.Handle)
	r.inputs[step.Handle] = inputs
	err := r.failures[step.Handle]
	started := r.hold[step.Handle]
	r.mu.Unlock()

	if started != nil {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if r.Inner != nil {
		return r.Inner.RunStep(ctx, step, inputs, resources)
	}
	task, _ := step.Task()
	return task.Compute(ctx, &dag.Invocation{
		Step:      step.Handle,
		Inputs:    inputs,
		Config:    step.Config,
		Resources: resources,
	})
}

// Order returns the handles in the order their steps started.
func (r *RecordingRunner) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Ran reports whether the step with handle started.
func (r *RecordingRunner) Ran(handle string) bool {
	return slices.Contains(r.Order(), handle)
}

// Inputs returns the inputs a step received.
func (r *RecordingRunner) Inputs(handle string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs[handle]
}
