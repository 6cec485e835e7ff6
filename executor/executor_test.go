package executor

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/dag/testutil"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/resource"
	"github.com/kbukum/flowkit/schedule"
)

func newExecutor(t *testing.T, opts Options) *Executor {
	t.Helper()
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func pipeline(t *testing.T, spec dag.PipelineSpec) *dag.Pipeline {
	t.Helper()
	if spec.Name == "" {
		spec.Name = "test"
	}
	p, err := dag.NewPipeline(spec)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func value(name string, out dag.Outputs, err error, ports ...dag.Port) *testutil.MockTask {
	var inputs, outputs []dag.Port
	for _, p := range ports {
		if _, ok := out[p.Name]; ok {
			outputs = append(outputs, p)
		} else {
			inputs = append(inputs, p)
		}
	}
	return testutil.NewMockTask(dag.TaskSpec{Name: name, Inputs: inputs, Outputs: outputs}, out, err)
}

func TestExecute_Chain(t *testing.T) {
	hooks := testutil.NewRecordingHooks()
	g := testutil.Chain("A", "B", "C")
	p := pipeline(t, dag.PipelineSpec{
		Name:  "chain",
		Nodes: g.Nodes,
		Edges: g.Edges,
		Hooks: []hook.Definition{
			hooks.Hook("done", hook.Pipeline(), hook.OnSuccess),
			hooks.Hook("b-done", hook.Task("B"), hook.OnSuccess),
		},
	})
	runner := testutil.NewRecordingRunner(nil)
	res, err := newExecutor(t, Options{Runner: runner}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if res.Status != RunSuccess || res.Partial || res.Error != nil {
		t.Fatalf("expected SUCCESS, got %s (%v)", res.Status, res.Error)
	}
	if got := runner.Order(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("expected A, B, C, got %v", got)
	}
	if res.Outputs("C")["out"] != "A" {
		t.Errorf("expected A's value to flow to C, got %v", res.Outputs("C"))
	}
	if hooks.Count("done") != 1 || hooks.Count("b-done") != 1 {
		t.Errorf("expected each hook once, got %v", hooks.Events())
	}
	if res.RunID == "" || res.Pipeline != "chain" {
		t.Errorf("unexpected identity %q %q", res.RunID, res.Pipeline)
	}
}

func TestExecute_FailureIsolatesBranches(t *testing.T) {
	boom := stderrors.New("boom")
	a := value("A", dag.Outputs{"x": 1}, nil, dag.Out[int]("x"))
	b := value("B", dag.Outputs{"y": 2}, nil, dag.Out[int]("y"))
	c := value("C", nil, nil, dag.In[int]("x"))

	hooks := testutil.NewRecordingHooks()
	p := pipeline(t, dag.PipelineSpec{
		Nodes: []dag.Node{dag.Use(a.Task()), dag.Use(b.Task()), dag.Use(c.Task())},
		Edges: []dag.Edge{dag.Connect("A", "x", "C", "x")},
		Hooks: []hook.Definition{
			hooks.Hook("on-failure", hook.Pipeline(), hook.OnFailure),
			hooks.Hook("on-success", hook.Pipeline(), hook.OnSuccess),
		},
	})
	runner := testutil.NewRecordingRunner(nil).Fail("A", boom)

	res, err := newExecutor(t, Options{Runner: runner}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if res.Status != RunFailure || !res.Partial || res.Reason != errors.ErrCodeStepFailed {
		t.Fatalf("expected partial FAILURE, got %s partial=%v reason=%s", res.Status, res.Partial, res.Reason)
	}
	if s, _ := res.Step("A"); s.Status != StepFailed || !stderrors.Is(s.Error, boom) {
		t.Errorf("expected A failed with boom, got %+v", s)
	}
	if s, _ := res.Step("B"); s.Status != StepSucceeded {
		t.Errorf("expected B to succeed, got %s", s.Status)
	}
	if s, _ := res.Step("C"); s.Status != StepSkipped || s.Reason != ReasonUpstreamFailed {
		t.Errorf("expected C skipped, got %+v", s)
	}
	if runner.Ran("C") {
		t.Error("C must not start after A failed")
	}

	if hooks.Count("on-failure") != 1 || hooks.Count("on-success") != 0 {
		t.Fatalf("expected one failure hook, got %v", hooks.Events())
	}
	if ev := hooks.Events()[0].Event; !errors.HasCode(ev.Err, errors.ErrCodeStepFailed) {
		t.Errorf("expected the failure cause on the event, got %v", ev.Err)
	}
}

func TestExecute_HookErrorsDoNotChangeStatus(t *testing.T) {
	hooks := testutil.NewRecordingHooks()
	p := pipeline(t, dag.PipelineSpec{
		Nodes: testutil.Chain("A").Nodes,
		Hooks: []hook.Definition{
			hooks.Failing("broken", hook.Pipeline(), hook.OnSuccess, stderrors.New("smtp down")),
			hooks.Hook("after", hook.Pipeline(), hook.OnSuccess),
		},
	})
	res, err := newExecutor(t, Options{}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != RunSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.Status)
	}
	if len(res.HookErrors) != 1 || res.HookErrors[0].Code != errors.ErrCodeHookError {
		t.Fatalf("expected one HOOK_ERROR, got %v", res.HookErrors)
	}
	if hooks.Count("after") != 1 {
		t.Error("expected later hooks to run after a failing one")
	}
}

func TestExecute_Cancellation(t *testing.T) {
	hooks := testutil.NewRecordingHooks()
	g := testutil.Chain("A", "B")
	p := pipeline(t, dag.PipelineSpec{
		Nodes: g.Nodes,
		Edges: g.Edges,
		Hooks: []hook.Definition{hooks.Hook("on-failure", hook.Pipeline(), hook.OnFailure)},
	})
	runner := testutil.NewRecordingRunner(nil)
	started := runner.Hold("A")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res, err := newExecutor(t, Options{Runner: runner}).Execute(ctx, p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != RunFailure || res.Reason != errors.ErrCodeCancelled {
		t.Fatalf("expected FAILURE CANCELLED, got %s %s", res.Status, res.Reason)
	}
	if s, _ := res.Step("A"); s.Status != StepFailed || !errors.HasCode(s.Error, errors.ErrCodeCancelled) {
		t.Errorf("expected A cancelled, got %+v", s)
	}
	if s, _ := res.Step("B"); s.Status != StepSkipped {
		t.Errorf("expected B skipped, got %s", s.Status)
	}
	if runner.Ran("B") {
		t.Error("no step may start after cancellation")
	}
	if hooks.Count("on-failure") != 1 {
		t.Error("expected failure hook after cancellation")
	}
}

func TestExecute_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := pipeline(t, dag.PipelineSpec{Nodes: testutil.Chain("A").Nodes})
	runner := testutil.NewRecordingRunner(nil)

	res, _ := newExecutor(t, Options{Runner: runner}).Execute(ctx, p, dag.RunConfig{})
	if res.Reason != errors.ErrCodeCancelled || res.Steps[0].Reason != ReasonCancelled {
		t.Fatalf("expected cancelled run with skipped step, got %+v", res)
	}
	if len(runner.Order()) != 0 {
		t.Error("expected no step to start")
	}
}

func TestExecute_Resources(t *testing.T) {
	var acquired, released atomic.Int32
	db := resource.Definition{
		Key:     "db",
		Acquire: func(context.Context) (any, error) { acquired.Add(1); return "conn", nil },
		Release: func(context.Context, any) error { released.Add(1); return nil },
	}
	read := func(name string) *testutil.MockTask {
		return testutil.NewMockTaskFunc(dag.TaskSpec{Name: name, Resources: []string{"db"}},
			func(_ context.Context, inv *dag.Invocation) (dag.Outputs, error) {
				conn, err := dag.Resource[string](inv, "db")
				if err != nil || conn != "conn" {
					return nil, stderrors.New("db handle missing")
				}
				return nil, nil
			})
	}
	p := pipeline(t, dag.PipelineSpec{
		Nodes:     []dag.Node{dag.Use(read("R1").Task()), dag.Use(read("R2").Task())},
		Resources: []string{"db"},
	})

	res, err := newExecutor(t, Options{Resources: []resource.Definition{db}}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != RunSuccess {
		t.Fatalf("expected SUCCESS, got %s: %v", res.Status, res.Error)
	}
	if acquired.Load() != 1 || released.Load() != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", acquired.Load(), released.Load())
	}
}

func TestExecute_ProvisioningFailure(t *testing.T) {
	hooks := testutil.NewRecordingHooks()
	task := testutil.NewMockTask(dag.TaskSpec{Name: "R", Resources: []string{"db"}}, nil, nil)
	p := pipeline(t, dag.PipelineSpec{
		Nodes: []dag.Node{dag.Use(task.Task())},
		Hooks: []hook.Definition{hooks.Hook("on-failure", hook.Pipeline(), hook.OnFailure)},
	})

	res, err := newExecutor(t, Options{}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != RunFailure || res.Reason != errors.ErrCodeResource || res.Partial {
		t.Fatalf("expected RESOURCE_ERROR failure, got %s %s", res.Status, res.Reason)
	}
	if res.Steps[0].Status != StepSkipped || task.Calls() != 0 {
		t.Error("expected the step to be skipped")
	}
	if hooks.Count("on-failure") != 1 {
		t.Error("expected failure hook on provisioning failure")
	}
}

func TestExecute_Composite(t *testing.T) {
	double := func(_ context.Context, inv *dag.Invocation) (dag.Outputs, error) {
		v, err := dag.MustInput[int](inv, "in")
		return dag.Outputs{"out": v * 2}, err
	}
	spec := func(name string) dag.TaskSpec {
		return dag.TaskSpec{Name: name, Inputs: []dag.Port{dag.In[int]("in")}, Outputs: []dag.Port{dag.Out[int]("out")}}
	}
	P := testutil.NewMockTaskFunc(spec("P"), double)
	Q := testutil.NewMockTaskFunc(spec("Q"), double)
	comp, err := dag.NewComposite(dag.CompositeSpec{
		Name:    "comp",
		Nodes:   []dag.Node{dag.Use(P.Task()), dag.Use(Q.Task())},
		Edges:   []dag.Edge{dag.Connect("P", "out", "Q", "in")},
		Inputs:  []dag.Mapping{dag.Expose("in", "P", "in")},
		Outputs: []dag.Mapping{dag.Expose("out", "Q", "out")},
	})
	if err != nil {
		t.Fatal(err)
	}
	src := value("src", dag.Outputs{"out": 3}, nil, dag.Out[int]("out"))
	R := testutil.NewMockTaskFunc(spec("R"), double)

	hooks := testutil.NewRecordingHooks()
	p := pipeline(t, dag.PipelineSpec{
		Nodes: []dag.Node{dag.Use(src.Task()), dag.Use(comp), dag.Use(R.Task())},
		Edges: []dag.Edge{dag.Connect("src", "out", "comp", "in"), dag.Connect("comp", "out", "R", "in")},
		Hooks: []hook.Definition{hooks.Hook("q-done", hook.Task("comp.Q"), hook.OnSuccess)},
	})

	res, err := newExecutor(t, Options{}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != RunSuccess {
		t.Fatalf("expected SUCCESS, got %s: %v", res.Status, res.Error)
	}
	if got := res.Outputs("R")["out"]; got != 24 {
		t.Fatalf("expected 3*2*2*2 = 24, got %v", got)
	}
	c, _ := res.Step("comp")
	if len(c.Children) != 2 || c.Children[0].Handle != "comp.P" || c.Outputs["out"] != 12 {
		t.Fatalf("unexpected composite result %+v", c)
	}
	if s, ok := res.Step("comp.Q"); !ok || s.Status != StepSucceeded {
		t.Error("expected nested step lookup by dotted handle")
	}
	if hooks.Count("q-done") != 1 {
		t.Error("expected task hook on nested step")
	}
}

func TestExecute_CompositeChildFailure(t *testing.T) {
	P := testutil.NewMockTask(dag.TaskSpec{
		Name:    "P",
		Inputs:  []dag.Port{dag.In[int]("in")},
		Outputs: []dag.Port{dag.Out[int]("out")},
	}, nil, stderrors.New("inner"))
	comp, err := dag.NewComposite(dag.CompositeSpec{
		Name:    "comp",
		Nodes:   []dag.Node{dag.Use(P.Task())},
		Inputs:  []dag.Mapping{dag.Expose("in", "P", "in")},
		Outputs: []dag.Mapping{dag.Expose("out", "P", "out")},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline(t, dag.PipelineSpec{Nodes: []dag.Node{dag.Use(comp)}})
	cfg := dag.RunConfig{Tasks: map[string]dag.TaskConfig{"comp": {Inputs: map[string]any{"in": 1}}}}

	res, err := newExecutor(t, Options{}).Execute(context.Background(), p, cfg)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := res.Step("comp")
	if c.Status != StepFailed || c.Children[0].Status != StepFailed {
		t.Fatalf("expected composite and child failed, got %+v", c)
	}
}

func TestExecute_OutputTypeChecked(t *testing.T) {
	bad := value("A", dag.Outputs{"x": "not an int"}, nil, dag.Out[int]("x"))
	undeclared := value("B", dag.Outputs{"x": 1, "extra": 2}, nil, dag.Out[int]("x"))
	missing := testutil.NewMockTask(dag.TaskSpec{Name: "C", Outputs: []dag.Port{dag.Out[int]("x")}}, nil, nil)

	tests := []struct {
		name string
		task *testutil.MockTask
		code errors.ErrorCode
	}{
		{"wrong type", bad, errors.ErrCodeTypeMismatch},
		{"undeclared output", undeclared, errors.ErrCodeGraphValidation},
		{"missing required output", missing, errors.ErrCodeGraphValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := pipeline(t, dag.PipelineSpec{Nodes: []dag.Node{dag.Use(tc.task.Task())}})
			res, err := newExecutor(t, Options{}).Execute(context.Background(), p, dag.RunConfig{})
			if err != nil {
				t.Fatal(err)
			}
			if !errors.HasCode(res.Steps[0].Error, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, res.Steps[0].Error)
			}
		})
	}
}

func TestExecute_Retry(t *testing.T) {
	var calls atomic.Int32
	flaky := testutil.NewMockTaskFunc(dag.TaskSpec{
		Name:  "flaky",
		Retry: &dag.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}, func(context.Context, *dag.Invocation) (dag.Outputs, error) {
		if calls.Add(1) < 3 {
			return nil, stderrors.New("transient")
		}
		return nil, nil
	})
	p := pipeline(t, dag.PipelineSpec{Nodes: []dag.Node{dag.Use(flaky.Task())}})

	res, err := newExecutor(t, Options{}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != RunSuccess || res.Steps[0].Attempts != 3 {
		t.Fatalf("expected success after 3 attempts, got %s after %d", res.Status, res.Steps[0].Attempts)
	}
}

func TestExecute_PanicRecovered(t *testing.T) {
	task := testutil.NewMockTaskFunc(dag.TaskSpec{Name: "P"}, func(context.Context, *dag.Invocation) (dag.Outputs, error) {
		panic("kaboom")
	})
	p := pipeline(t, dag.PipelineSpec{Nodes: []dag.Node{dag.Use(task.Task())}})

	res, err := newExecutor(t, Options{}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps[0].Status != StepFailed || !strings.Contains(res.Steps[0].Error.Error(), "kaboom") {
		t.Fatalf("expected recovered panic, got %+v", res.Steps[0])
	}
}

func TestExecute_StepTimeout(t *testing.T) {
	p := pipeline(t, dag.PipelineSpec{Nodes: testutil.Chain("slow").Nodes})
	runner := testutil.NewRecordingRunner(nil)
	runner.Hold("slow")

	e := newExecutor(t, Options{Runner: runner, Config: Config{StepTimeout: 10 * time.Millisecond}})
	res, err := e.Execute(context.Background(), p, dag.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.HasCode(res.Steps[0].Error, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", res.Steps[0].Error)
	}
	if res.Reason != errors.ErrCodeStepFailed {
		t.Errorf("expected STEP_FAILED run, got %s", res.Reason)
	}
}

func TestExecute_ConfigInputsAndSelection(t *testing.T) {
	g := testutil.Chain("A", "B")
	p := pipeline(t, dag.PipelineSpec{Nodes: g.Nodes, Edges: g.Edges})
	cfg := dag.RunConfig{Tasks: map[string]dag.TaskConfig{"B": {Inputs: map[string]any{"in": "seed"}}}}
	runner := testutil.NewRecordingRunner(nil)

	res, err := newExecutor(t, Options{Runner: runner}).Execute(context.Background(), p, cfg, dag.WithSelection("B"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Steps) != 1 || res.Outputs("B")["out"] != "seed" || runner.Ran("A") {
		t.Fatalf("expected only B with the configured input, got %+v", res.Steps)
	}
}

func TestExecute_InvalidInvocation(t *testing.T) {
	e := newExecutor(t, Options{})
	if _, err := e.Execute(context.Background(), nil, dag.RunConfig{}); err == nil {
		t.Fatal("expected error for nil pipeline")
	}
	p := pipeline(t, dag.PipelineSpec{Nodes: testutil.Chain("A").Nodes})
	cfg := dag.RunConfig{Tasks: map[string]dag.TaskConfig{"Z": {}}}
	if _, err := e.Execute(context.Background(), p, cfg); !errors.HasCode(err, errors.ErrCodeSchema) {
		t.Fatalf("expected SCHEMA_ERROR for unknown task config, got %v", err)
	}
	if _, err := e.ExecutePlan(context.Background(), "x", nil, nil); err == nil {
		t.Fatal("expected error for nil plan")
	}
}

func TestExecuteRequest(t *testing.T) {
	p := pipeline(t, dag.PipelineSpec{Name: "etl", Nodes: testutil.Chain("A").Nodes})
	def, err := schedule.New(schedule.Spec{Name: "hourly", Pipeline: p, Cron: schedule.Hourly(0), CatchUp: schedule.CatchUpFireAll})
	if err != nil {
		t.Fatal(err)
	}
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine, err := schedule.NewEngine(schedule.EngineConfig{}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	eval, err := engine.Evaluate(context.Background(), def, since, since.Add(time.Hour), nil)
	if err != nil || len(eval.Requests) != 1 {
		t.Fatalf("Evaluate() = %+v, %v", eval, err)
	}
	req := eval.Requests[0]

	res, err := newExecutor(t, Options{}).ExecuteRequest(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID != req.RunKey || res.Status != RunSuccess {
		t.Fatalf("expected run %s to succeed, got %s %s", req.RunKey, res.RunID, res.Status)
	}
	if res.Tags[schedule.TagSchedule] != "hourly" {
		t.Errorf("expected schedule tag, got %v", res.Tags)
	}
}

func TestExecute_MaxParallelBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var nodes []dag.Node
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		task := testutil.NewMockTaskFunc(dag.TaskSpec{Name: name}, func(context.Context, *dag.Invocation) (dag.Outputs, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
		nodes = append(nodes, dag.Use(task.Task()))
	}
	p := pipeline(t, dag.PipelineSpec{Nodes: nodes})

	res, err := newExecutor(t, Options{Config: Config{MaxParallel: 2}}).Execute(context.Background(), p, dag.RunConfig{})
	if err != nil || res.Status != RunSuccess {
		t.Fatalf("Execute() = %v, %v", res, err)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent steps, saw %d", peak.Load())
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.ErrorCode
	}{
		{"negative parallelism", Options{Config: Config{MaxParallel: -1}}, errors.ErrCodeSchema},
		{"duplicate resource", Options{Resources: []resource.Definition{resource.Value("db", 1), resource.Value("db", 2)}}, errors.ErrCodeDuplicateName},
		{"invalid hook", Options{Hooks: []hook.Definition{{Name: "x"}}}, errors.ErrCodeSchema},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); !errors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
	e := newExecutor(t, Options{})
	if e.Config().MaxParallel != DefaultMaxParallel {
		t.Errorf("expected default parallelism, got %d", e.Config().MaxParallel)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunPending, RunRunning, true},
		{RunPending, RunFailure, true},
		{RunRunning, RunSuccess, true},
		{RunRunning, RunFailure, true},
		{RunPending, RunSuccess, false},
		{RunSuccess, RunRunning, false},
		{RunFailure, RunSuccess, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	s := newRunState()
	if err := s.transition(RunSuccess); !errors.HasCode(err, errors.ErrCodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
	if !RunFailure.Terminal() || RunRunning.Terminal() {
		t.Error("unexpected terminal states")
	}
}
