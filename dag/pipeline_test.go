package dag

import (
	"context"
	"slices"
	"testing"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
)

func noopHook(context.Context, hook.Event) error { return nil }

func TestNewPipeline(t *testing.T) {
	g := chain(t)
	p, err := NewPipeline(PipelineSpec{
		Name:  "etl",
		Nodes: g.Nodes,
		Edges: g.Edges,
		Hooks: []hook.Definition{
			hook.Failure("page", hook.Pipeline(), noopHook),
			hook.Success("b-done", hook.Task("B"), noopHook),
		},
		Tags: map[string]string{"team": "data"},
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	if got := p.NodeNames(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected node order %v", got)
	}
	if len(p.Hooks()) != 2 || p.Tags()["team"] != "data" {
		t.Fatalf("unexpected hooks or tags")
	}

	plan, err := p.Plan(RunConfig{Tags: map[string]string{"trigger": "manual"}})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if tags := plan.Tags(); tags["team"] != "data" || tags["trigger"] != "manual" {
		t.Errorf("expected pipeline and run tags, got %v", tags)
	}
}

func TestNewPipeline_Errors(t *testing.T) {
	g := chain(t)
	db := mustTask(t, TaskSpec{Name: "D", Resources: []string{"db"}})
	tests := []struct {
		name string
		spec PipelineSpec
		code errors.ErrorCode
	}{
		{"missing name", PipelineSpec{Nodes: g.Nodes}, errors.ErrCodeSchema},
		{"bad edge", PipelineSpec{Name: "p", Nodes: g.Nodes, Edges: append(slices.Clone(g.Edges), Connect("C", "nope", "A", "x"))}, errors.ErrCodeGraphValidation},
		{"undeclared resource", PipelineSpec{Name: "p", Nodes: []Node{Use(db)}, Resources: []string{"cache"}}, errors.ErrCodeSchema},
		{"hook on unknown task", PipelineSpec{Name: "p", Nodes: g.Nodes, Edges: g.Edges,
			Hooks: []hook.Definition{hook.Success("h", hook.Task("Z"), noopHook)}}, errors.ErrCodeGraphValidation},
		{"invalid hook", PipelineSpec{Name: "p", Nodes: g.Nodes, Edges: g.Edges,
			Hooks: []hook.Definition{hook.Success("h", hook.Pipeline(), nil)}}, errors.ErrCodeSchema},
		{"defaults for unknown task", PipelineSpec{Name: "p", Nodes: g.Nodes, Edges: g.Edges,
			Defaults: RunConfig{Tasks: map[string]TaskConfig{"Z": {}}}}, errors.ErrCodeSchema},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPipeline(tc.spec)
			if !errors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestPipeline_PlanMergesDefaults(t *testing.T) {
	task := mustTask(t, TaskSpec{Name: "fetch", Config: []ConfigField{
		RequiredField("url", ConfigString),
		Field("limit", ConfigInt, 10),
	}})
	p, err := NewPipeline(PipelineSpec{
		Name:     "p",
		Nodes:    []Node{Use(task)},
		Defaults: RunConfig{Tasks: map[string]TaskConfig{"fetch": {Config: map[string]any{"url": "a", "limit": 5}}}},
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	plan, err := p.Plan(RunConfig{Tasks: map[string]TaskConfig{"fetch": {Config: map[string]any{"limit": 7}}}})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	conf := plan.StepAt(0).Config
	if conf.String("url") != "a" || conf.Int("limit") != 7 {
		t.Fatalf("expected url from defaults and limit from run config, got %v", conf.Values())
	}
	if p.Defaults().Tasks["fetch"].Config["limit"] != 5 {
		t.Fatal("Plan must not modify pipeline defaults")
	}
}

func TestPipeline_DeclaredResourcesCoverRequirements(t *testing.T) {
	db := mustTask(t, TaskSpec{Name: "D", Resources: []string{"db"}})
	p, err := NewPipeline(PipelineSpec{Name: "p", Nodes: []Node{Use(db)}, Resources: []string{"db", "metrics"}})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	if got := p.Resources(); !slices.Equal(got, []string{"db", "metrics"}) {
		t.Fatalf("unexpected resources %v", got)
	}
}

func TestRunConfig_Merge(t *testing.T) {
	base := RunConfig{
		Tasks: map[string]TaskConfig{"a": {Config: map[string]any{"x": 1, "y": 2}}},
		Tags:  map[string]string{"env": "dev"},
	}
	over := RunConfig{
		Tasks: map[string]TaskConfig{"a": {Config: map[string]any{"y": 3}}, "b": {Inputs: map[string]any{"in": 1}}},
		Tags:  map[string]string{"env": "prod"},
	}
	got := base.Merge(over)
	if got.Tasks["a"].Config["x"] != 1 || got.Tasks["a"].Config["y"] != 3 || got.Tasks["b"].Inputs["in"] != 1 {
		t.Fatalf("unexpected merge %+v", got)
	}
	if got.Tags["env"] != "prod" {
		t.Errorf("expected override tag, got %v", got.Tags)
	}
	if base.Tasks["a"].Config["y"] != 2 || base.Tags["env"] != "dev" {
		t.Fatal("Merge modified its receiver")
	}
}
