package testutil

import (
	"context"
	"sync"

	"github.com/kbukum/flowkit/dag"
)

// MockTask is a task that records its invocations and returns preset
// outputs or an error.
type MockTask struct {
	task *dag.Task
	out  dag.Outputs
	err  error
	fn   dag.ComputeFunc

	mu          sync.Mutex
	invocations []*dag.Invocation
}

// NewMockTask builds a task from spec whose compute returns out and err.
// spec.Compute is ignored.
func NewMockTask(spec dag.TaskSpec, out dag.Outputs, err error) *MockTask {
	m := &MockTask{out: out, err: err}
	spec.Compute = m.compute
	m.task = dag.MustTask(spec)
	return m
}

// NewMockTaskFunc builds a task from spec backed by fn.
func NewMockTaskFunc(spec dag.TaskSpec, fn dag.ComputeFunc) *MockTask {
	m := &MockTask{fn: fn}
	spec.Compute = m.compute
	m.task = dag.MustTask(spec)
	return m
}

func (m *MockTask) compute(ctx context.Context, inv *dag.Invocation) (dag.Outputs, error) {
	m.mu.Lock()
	m.invocations = append(m.invocations, inv)
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn(ctx, inv)
	}
	return m.out, m.err
}

// Task returns the task definition.
func (m *MockTask) Task() *dag.Task { return m.task }

// Calls returns how many times the task computed.
func (m *MockTask) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invocations)
}

// Invocations returns the recorded invocations in call order.
func (m *MockTask) Invocations() []*dag.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*dag.Invocation(nil), m.invocations...)
}

// Reset clears the recorded invocations.
func (m *MockTask) Reset() {
	m.mu.Lock()
	m.invocations = nil
	m.mu.Unlock()
}

// Passthrough returns a task copying its "in" input to its "out" output.
// Both ports are untyped; "in" is optional so the task can start a chain.
func Passthrough(name string) *dag.Task {
	return dag.MustTask(dag.TaskSpec{
		Name:    name,
		Inputs:  []dag.Port{dag.OptionalIn[any]("in")},
		Outputs: []dag.Port{dag.Out[any]("out")},
		Compute: func(_ context.Context, inv *dag.Invocation) (dag.Outputs, error) {
			v, ok := inv.Inputs["in"]
			if !ok {
				v = inv.Step
			}
			return dag.Outputs{"out": v}, nil
		},
	})
}

// Chain returns a graph of passthrough tasks connected in order.
func Chain(names ...string) dag.GraphSpec {
	var g dag.GraphSpec
	for i, name := range names {
		g.Nodes = append(g.Nodes, dag.Use(Passthrough(name)))
		if i > 0 {
			g.Edges = append(g.Edges, dag.Connect(names[i-1], "out", name, "in"))
		}
	}
	return g
}
