package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/resource"
	"github.com/kbukum/flowkit/schedule"
)

// Options configures an Executor.
type Options struct {
	Config Config
	// Runner executes leaf steps. Defaults to LocalRunner.
	Runner StepRunner
	// Resources defines every resource a step may require.
	Resources []resource.Definition
	// Hooks fire for every run after the pipeline's own hooks.
	Hooks []hook.Definition
	// Metrics records run counts, durations and hook errors when set.
	Metrics *observability.Metrics
	// Tracing opens a span per run and per hook dispatch.
	Tracing bool
	Log     *logger.Logger
}

// Executor runs plans. It is safe for concurrent use; each run gets its
// own resource manager and hook dispatcher.
type Executor struct {
	cfg       Config
	runner    StepRunner
	resources []resource.Definition
	hooks     []hook.Definition
	metrics   *observability.Metrics
	tracing   bool
	log       *logger.Logger
}

// New validates opts and creates an Executor.
func New(opts Options) (*Executor, error) {
	cfg := opts.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Schema("executor config: %v", err).WithCause(err)
	}

	log := logger.OrComponent(opts.Log, "executor")
	if _, err := resource.NewManager(opts.Resources, log); err != nil {
		return nil, err
	}
	for _, h := range opts.Hooks {
		if err := h.Validate(); err != nil {
			return nil, err
		}
	}

	runner := opts.Runner
	if runner == nil {
		runner = LocalRunner{Log: log}
	}
	return &Executor{
		cfg:       cfg,
		runner:    runner,
		resources: slices.Clone(opts.Resources),
		hooks:     slices.Clone(opts.Hooks),
		metrics:   opts.Metrics,
		tracing:   opts.Tracing,
		log:       log,
	}, nil
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.cfg }

// Execute compiles p with cfg and runs the plan under a new run ID.
func (e *Executor) Execute(ctx context.Context, p *dag.Pipeline, cfg dag.RunConfig, opts ...dag.CompileOption) (*RunResult, error) {
	if p == nil {
		return nil, errors.InvalidInput("pipeline", "pipeline is required")
	}
	plan, err := p.Plan(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, uuid.New().String(), p.Name(), plan, p.Hooks()), nil
}

// ExecuteRequest runs the pipeline of a schedule run request. The request's
// run key becomes the run ID, so every evaluation of a tick names the same run.
func (e *Executor) ExecuteRequest(ctx context.Context, req schedule.RunRequest) (*RunResult, error) {
	if req.Pipeline == nil {
		return nil, errors.InvalidInput("pipeline", "run request has no pipeline")
	}
	cfg := req.Config.Merge(dag.RunConfig{Tags: req.Tags})
	var opts []dag.CompileOption
	if len(req.Selection) > 0 {
		opts = append(opts, dag.WithSelection(req.Selection...))
	}
	plan, err := req.Pipeline.Plan(cfg, opts...)
	if err != nil {
		return nil, err
	}
	runID := req.RunKey
	if runID == "" {
		runID = uuid.New().String()
	}
	return e.run(ctx, runID, req.Pipeline.Name(), plan, req.Pipeline.Hooks()), nil
}

// ExecutePlan runs an already compiled plan with the given pipeline hooks.
func (e *Executor) ExecutePlan(ctx context.Context, pipeline string, plan *dag.Plan, hooks []hook.Definition) (*RunResult, error) {
	if plan == nil {
		return nil, errors.InvalidInput("plan", "plan is required")
	}
	for _, h := range hooks {
		if err := h.Validate(); err != nil {
			return nil, err
		}
	}
	return e.run(ctx, uuid.New().String(), pipeline, plan, hooks), nil
}

// execution is the state of one run shared by every plan level.
type execution struct {
	exec       *Executor
	id         string
	pipeline   string
	tags       map[string]string
	log        *logger.Logger
	resources  *resource.Manager
	dispatcher *hook.Dispatcher

	mu         sync.Mutex
	hookErrors []*errors.AppError
}

func (e *Executor) run(ctx context.Context, runID, pipeline string, plan *dag.Plan, hooks []hook.Definition) (result *RunResult) {
	start := time.Now()
	state := newRunState()
	log := e.log.WithFields(logger.Fields(logger.FieldRunID, runID, "pipeline", pipeline))

	ctx = logger.ContextWithRunID(ctx, runID)
	ctx = ContextWithRunInfo(ctx, RunInfo{RunID: runID, Pipeline: pipeline})
	if e.tracing {
		var end func(*RunResult)
		ctx, end = startRunSpan(ctx, runID, pipeline)
		defer func() { end(result) }()
	}
	if e.metrics != nil {
		e.metrics.RecordRunStart(ctx, pipeline)
	}

	// NewManager cannot fail here: New validated the same definitions.
	mgr, _ := resource.NewManager(e.resources, log)
	x := &execution{
		exec:       e,
		id:         runID,
		pipeline:   pipeline,
		tags:       plan.Tags(),
		log:        log,
		resources:  mgr,
		dispatcher: hook.NewDispatcher(append(slices.Clone(hooks), e.hooks...), log),
	}
	result = &RunResult{RunID: runID, Pipeline: pipeline, Status: state.get(), Tags: plan.Tags()}
	log.Info("Run started", logger.Fields("steps", plan.Len()))

	if err := mgr.Provision(ctx, plan.Resources()); err != nil {
		result.Steps = skipAll(plan, ReasonNotProvisioned)
		x.finish(ctx, state, result, errors.Wrap(err), start)
		return result
	}

	_ = state.transition(RunRunning)
	result.Status = state.get()
	result.Steps, _ = x.execute(ctx, plan, nil, true)
	if err := mgr.ReleaseAll(ctx); err != nil {
		log.Warn("Releasing resources failed", logger.MergeWithError(nil, err))
	}

	x.finish(ctx, state, result, runFailure(ctx, result.Steps), start)
	return result
}

// runFailure returns the error that fails a run, or nil when every step succeeded.
func runFailure(ctx context.Context, steps []StepResult) *errors.AppError {
	var failed *errors.AppError
	ok := true
	for _, s := range steps {
		if s.Status == StepSucceeded {
			continue
		}
		ok = false
		if failed == nil && s.Error != nil {
			failed = s.Error
		}
	}
	switch {
	case ok:
		return nil
	case ctx.Err() != nil:
		return errors.Cancelled(ctx.Err())
	case failed != nil:
		return failed
	default:
		return errors.Internal(stderrors.New("run ended with unfinished steps"))
	}
}

func (x *execution) finish(ctx context.Context, state *runState, result *RunResult, cause *errors.AppError, start time.Time) {
	to := RunSuccess
	if cause != nil {
		to = RunFailure
	}
	if err := state.transition(to); err != nil {
		x.log.Error("Run state", logger.MergeWithError(nil, err))
	}
	result.Status = state.get()
	if cause != nil {
		result.Reason = cause.Code
		result.Error = cause
		result.Partial = result.Count(StepSucceeded) > 0
	}
	result.Duration = time.Since(start)

	ev := hook.Event{
		RunID:    x.id,
		Pipeline: x.pipeline,
		Scope:    hook.Pipeline(),
		Outcome:  hook.OnSuccess,
		Tags:     maps.Clone(x.tags),
		Duration: result.Duration,
	}
	if cause != nil {
		ev.Outcome = hook.OnFailure
		ev.Err = cause
	}
	x.dispatch(context.WithoutCancel(ctx), ev)
	result.HookErrors = x.collectHookErrors()

	if m := x.exec.metrics; m != nil {
		m.RecordRunEnd(ctx, x.pipeline, string(result.Status), result.Duration)
		for _, he := range result.HookErrors {
			name, _ := he.Details["hook"].(string)
			m.RecordHookError(ctx, x.pipeline, name)
		}
	}

	fields := logger.MergeWithDuration(logger.Fields(
		logger.FieldStatus, string(result.Status),
		"succeeded", result.Count(StepSucceeded),
		"failed", result.Count(StepFailed),
		"skipped", result.Count(StepSkipped),
	), result.Duration)
	if cause != nil {
		x.log.Warn("Run failed", logger.MergeWithError(fields, cause))
		return
	}
	x.log.Info("Run succeeded", fields)
}

func (x *execution) dispatch(ctx context.Context, ev hook.Event) {
	if x.exec.tracing {
		var span trace.Span
		ctx, span = startHookSpan(ctx, ev)
		defer span.End()
	}
	errs := x.dispatcher.Dispatch(ctx, ev)
	if len(errs) == 0 {
		return
	}
	x.mu.Lock()
	x.hookErrors = append(x.hookErrors, errs...)
	x.mu.Unlock()
}

func (x *execution) collectHookErrors() []*errors.AppError {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.hookErrors)
}

func (x *execution) stepHooks(ctx context.Context, step *dag.Step, res StepResult) {
	if res.Status == StepSkipped {
		return
	}
	ev := hook.Event{
		RunID:    x.id,
		Pipeline: x.pipeline,
		Scope:    hook.Task(step.Handle),
		Outcome:  hook.OnSuccess,
		Outputs:  maps.Clone(res.Outputs),
		Tags:     maps.Clone(x.tags),
		Duration: res.Duration,
	}
	if res.Status == StepFailed {
		ev.Outcome = hook.OnFailure
		ev.Err = res.Error
	}
	x.dispatch(context.WithoutCancel(ctx), ev)
}

func (x *execution) releaseStep(ctx context.Context, step *dag.Step) {
	for _, key := range step.Resources {
		if err := x.resources.Done(context.WithoutCancel(ctx), key); err != nil {
			x.log.Warn("Releasing resource failed", logger.MergeWithError(logger.Fields(logger.FieldResource, key), err))
		}
	}
}

func skipAll(plan *dag.Plan, reason string) []StepResult {
	out := make([]StepResult, plan.Len())
	for i, s := range plan.Steps() {
		out[i] = StepResult{Handle: s.Handle, Status: StepSkipped, Reason: reason}
	}
	return out
}

// planRun executes one level of plan: the top-level plan of a run or the
// sub-plan of a composite step.
type planRun struct {
	x         *execution
	plan      *dag.Plan
	externals map[string]any
	top       bool
	results   []StepResult
	outputs   []dag.Outputs
}

func (x *execution) execute(ctx context.Context, plan *dag.Plan, externals map[string]any, top bool) ([]StepResult, []dag.Outputs) {
	r := &planRun{
		x:         x,
		plan:      plan,
		externals: externals,
		top:       top,
		results:   make([]StepResult, plan.Len()),
		outputs:   make([]dag.Outputs, plan.Len()),
	}
	r.loop(ctx)
	return r.results, r.outputs
}

// loop starts each step once all of its upstream steps are terminal.
// results[i] and outputs[i] are written by the worker running step i
// before it reports on done, and read by the loop only after that.
func (r *planRun) loop(ctx context.Context) {
	n := r.plan.Len()
	if n == 0 {
		return
	}

	downstream := r.plan.Downstream()
	waiting := make([]int, n)
	var queue []int
	for i, s := range r.plan.Steps() {
		waiting[i] = len(s.Upstream)
		if waiting[i] == 0 {
			queue = append(queue, i)
		}
	}

	p := pool.New().WithMaxGoroutines(max(1, min(r.x.exec.cfg.MaxParallel, n)))
	done := make(chan int, n)
	finished := 0
	complete := func(i int) {
		finished++
		if r.top {
			r.x.releaseStep(ctx, r.plan.StepAt(i))
		}
		for _, d := range downstream[i] {
			waiting[d]--
			if waiting[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	for finished < n {
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			if reason := r.blocked(ctx, i); reason != "" {
				step := r.plan.StepAt(i)
				r.results[i] = StepResult{Handle: step.Handle, Status: StepSkipped, Reason: reason}
				r.x.log.Debug("Step skipped", logger.Fields(logger.FieldStep, step.Handle, "reason", reason))
				complete(i)
				continue
			}
			p.Go(func() {
				r.results[i] = r.runStep(ctx, i)
				done <- i
			})
		}
		if finished == n {
			break
		}
		complete(<-done)
	}
	p.Wait()
}

func (r *planRun) blocked(ctx context.Context, i int) string {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	for _, u := range r.plan.StepAt(i).Upstream {
		if r.results[u].Status != StepSucceeded {
			return ReasonUpstreamFailed
		}
	}
	return ""
}

func (r *planRun) runStep(ctx context.Context, i int) StepResult {
	step := r.plan.StepAt(i)
	start := time.Now()
	res := StepResult{Handle: step.Handle}

	inputs, err := r.inputs(step)
	var out dag.Outputs
	if err == nil {
		if step.IsComposite() {
			out, res.Children, err = r.runComposite(ctx, step, inputs)
			res.Attempts = 1
		} else {
			out, res.Attempts, err = r.runLeaf(ctx, step, inputs)
		}
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Status = StepFailed
		res.Error = stepError(ctx, step.Handle, err)
		r.x.log.Warn("Step failed", logger.MergeWithError(logger.Fields(logger.FieldStep, step.Handle), err))
	} else {
		res.Status = StepSucceeded
		r.outputs[i] = out
		res.Outputs = maps.Clone(out)
	}
	r.x.stepHooks(ctx, step, res)
	return res
}

func stepError(ctx context.Context, handle string, err error) *errors.AppError {
	if ctx.Err() != nil {
		return errors.Cancelled(err).WithDetail("step", handle)
	}
	if appErr, ok := errors.AsAppError(err); ok && appErr.Code == errors.ErrCodeStepFailed {
		return appErr
	}
	return errors.StepFailed(handle, err)
}

func (r *planRun) inputs(step *dag.Step) (map[string]any, error) {
	ports := step.Definition.Inputs()
	in := make(map[string]any, len(step.Inputs))
	for _, b := range step.Inputs {
		port := inputPort(ports, b.Input)
		var (
			v      any
			ok     bool
			source string
		)
		switch b.Kind {
		case dag.BindingUpstream:
			v, ok = r.outputs[b.Step][b.Output]
			source = r.plan.StepAt(b.Step).Handle + "." + b.Output
		case dag.BindingExternal:
			v, ok = r.externals[b.External]
			source = b.External
		case dag.BindingConfig:
			v, ok = b.Value, true
			source = "run config"
		}
		if !ok {
			if b.Kind == dag.BindingAbsent || port.Optional {
				continue
			}
			return nil, errors.UnsatisfiedInput(step.Handle, b.Input)
		}
		if !port.Type.Accepts(v) {
			return nil, errors.TypeMismatch(source, fmt.Sprintf("%T", v), step.Handle+"."+b.Input, port.Type.String())
		}
		in[b.Input] = v
	}
	return in, nil
}

func inputPort(ports []dag.Port, name string) dag.Port {
	for _, p := range ports {
		if p.Name == name {
			return p
		}
	}
	return dag.Port{Name: name, Type: dag.Any}
}

func (r *planRun) runLeaf(ctx context.Context, step *dag.Step, inputs map[string]any) (dag.Outputs, int, error) {
	if timeout := r.x.exec.cfg.StepTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stepCtx, attempts := withAttempts(ctx)

	out, err := r.x.callRunner(stepCtx, step, inputs, dag.Resources(r.x.resources.Handles(step.Resources)))
	n := max(*attempts, 1)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, n, errors.StepFailed(step.Handle, errors.Timeout("step "+step.Handle).WithCause(err))
		}
		return nil, n, err
	}
	out, err = checkOutputs(step, out)
	return out, n, err
}

func (x *execution) callRunner(ctx context.Context, step *dag.Step, inputs map[string]any, resources dag.Resources) (out dag.Outputs, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return x.exec.runner.RunStep(ctx, step, inputs, resources)
}

func (r *planRun) runComposite(ctx context.Context, step *dag.Step, inputs map[string]any) (dag.Outputs, []StepResult, error) {
	children, outputs := r.x.execute(ctx, step.SubPlan, inputs, false)

	var incomplete bool
	for _, c := range children {
		if c.Status == StepFailed {
			return nil, children, errors.StepFailed(step.Handle, c.Error)
		}
		incomplete = incomplete || c.Status != StepSucceeded
	}
	if incomplete {
		return nil, children, errors.Cancelled(ctx.Err())
	}

	out := make(dag.Outputs)
	for _, exp := range step.SubPlan.Exports() {
		v, ok := outputs[exp.Step][exp.Output]
		if !ok {
			if exp.Optional {
				continue
			}
			return nil, children, errors.GraphValidation(step.Handle+"."+exp.Name, "exported output was not produced")
		}
		out[exp.Name] = v
	}
	out, err := checkOutputs(step, out)
	return out, children, err
}

// checkOutputs returns a copy of out after checking it against the step's
// declared output ports.
func checkOutputs(step *dag.Step, out dag.Outputs) (dag.Outputs, error) {
	ports := step.Definition.Outputs()
	published := make(dag.Outputs, len(out))
	for name, v := range out {
		port, ok := outputPort(ports, name)
		if !ok {
			return nil, errors.GraphValidation(step.Handle+"."+name, "output is not declared")
		}
		if !port.Type.Accepts(v) {
			return nil, errors.TypeMismatch(step.Handle+"."+name, fmt.Sprintf("%T", v), "declared output", port.Type.String())
		}
		published[name] = v
	}
	for _, port := range ports {
		if _, ok := out[port.Name]; !ok && !port.Optional {
			return nil, errors.GraphValidation(step.Handle+"."+port.Name, "required output was not produced")
		}
	}
	return published, nil
}

func outputPort(ports []dag.Port, name string) (dag.Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return dag.Port{}, false
}
