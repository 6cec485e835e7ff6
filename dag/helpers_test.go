package dag

import (
	"context"
	"testing"
)

func passthrough(out string) ComputeFunc {
	return func(_ context.Context, inv *Invocation) (Outputs, error) {
		return Outputs{out: len(inv.Inputs)}, nil
	}
}

func mustTask(t *testing.T, spec TaskSpec) *Task {
	t.Helper()
	if spec.Compute == nil {
		spec.Compute = passthrough("out")
	}
	task, err := NewTask(spec)
	if err != nil {
		t.Fatalf("NewTask(%s) error = %v", spec.Name, err)
	}
	return task
}

// chain builds A -> B -> C where A produces x, B consumes x and produces y,
// and C consumes y.
func chain(t *testing.T) GraphSpec {
	t.Helper()
	a := mustTask(t, TaskSpec{Name: "A", Outputs: []Port{Out[int]("x")}})
	b := mustTask(t, TaskSpec{Name: "B", Inputs: []Port{In[int]("x")}, Outputs: []Port{Out[int]("y")}})
	c := mustTask(t, TaskSpec{Name: "C", Inputs: []Port{In[int]("y")}})
	return GraphSpec{
		Nodes: []Node{Use(a), Use(b), Use(c)},
		Edges: []Edge{Connect("A", "x", "B", "x"), Connect("B", "y", "C", "y")},
	}
}
