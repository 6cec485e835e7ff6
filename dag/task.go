package dag

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/validation"
)

// Definition is the shape shared by tasks and composites. A graph node
// invokes a Definition under an alias.
type Definition interface {
	Name() string
	Description() string
	Inputs() []Port
	Outputs() []Port
	ConfigSchema() ConfigSchema
	RequiredResources() []string
}

// Outputs maps output port names to produced values.
type Outputs map[string]any

// Resources maps resource keys to the shared handles a step may use.
type Resources map[string]any

// Get returns the handle for key.
func (r Resources) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

// Invocation is what a compute function sees of its step.
type Invocation struct {
	RunID     string
	Step      string
	Inputs    map[string]any
	Config    Config
	Resources Resources
	Log       *logger.Logger
}

// Input reads a typed input. Absent optional inputs return the zero value and false.
func Input[T any](inv *Invocation, name string) (T, bool, error) {
	var zero T
	raw, ok := inv.Inputs[name]
	if !ok {
		return zero, false, nil
	}
	if raw == nil {
		return zero, true, nil
	}
	val, ok := raw.(T)
	if !ok {
		return zero, true, fmt.Errorf("dag: input %q: expected %T, got %T", name, zero, raw)
	}
	return val, true, nil
}

// MustInput reads a typed input that must be present.
func MustInput[T any](inv *Invocation, name string) (T, error) {
	val, ok, err := Input[T](inv, name)
	if err != nil {
		return val, err
	}
	if !ok {
		return val, fmt.Errorf("dag: input %q not provided", name)
	}
	return val, nil
}

// Resource reads a typed resource handle.
func Resource[T any](inv *Invocation, key string) (T, error) {
	var zero T
	raw, ok := inv.Resources[key]
	if !ok {
		return zero, errors.Resource(key, "not provisioned for step "+inv.Step, nil)
	}
	val, ok := raw.(T)
	if !ok {
		return zero, errors.Resource(key, fmt.Sprintf("expected %T, got %T", zero, raw), nil)
	}
	return val, nil
}

// ComputeFunc performs the work of a task.
type ComputeFunc func(ctx context.Context, inv *Invocation) (Outputs, error)

// RetryPolicy configures retries of a failing compute step.
type RetryPolicy struct {
	MaxAttempts int           `validate:"min=1"`
	Backoff     time.Duration `validate:"min=0"`
	MaxBackoff  time.Duration `validate:"min=0"`
}

// TaskSpec declares a task.
type TaskSpec struct {
	Name        string
	Description string
	Inputs      []Port
	Outputs     []Port
	Config      []ConfigField
	Resources   []string
	Tags        map[string]string
	Retry       *RetryPolicy
	Compute     ComputeFunc
}

// Task is an immutable, validated task definition.
type Task struct {
	name        string
	description string
	inputs      []Port
	outputs     []Port
	schema      ConfigSchema
	resources   []string
	tags        map[string]string
	retry       *RetryPolicy
	compute     ComputeFunc
}

// NewTask validates spec and builds a Task.
func NewTask(spec TaskSpec) (*Task, error) {
	v := validation.New()
	v.Required("name", spec.Name)
	v.Check(spec.Compute != nil, "compute", "is required")
	checkPorts(v, "inputs", spec.Inputs)
	checkPorts(v, "outputs", spec.Outputs)
	for i, key := range spec.Resources {
		v.Check(key != "", fmt.Sprintf("resources[%d]", i), "key is required")
	}
	if spec.Retry != nil {
		if err := validation.Validate(spec.Retry); err != nil {
			v.AddError("retry", err.Error())
		}
	}
	if err := v.Schema("task " + spec.Name); err != nil {
		return nil, err
	}

	schema, err := NewConfigSchema(spec.Config...)
	if err != nil {
		return nil, errors.Schema("task %s: %v", spec.Name, err).WithCause(err)
	}

	t := &Task{
		name:        spec.Name,
		description: spec.Description,
		inputs:      copyPorts(spec.Inputs),
		outputs:     copyPorts(spec.Outputs),
		schema:      schema,
		resources:   sortedUnique(spec.Resources),
		tags:        maps.Clone(spec.Tags),
		compute:     spec.Compute,
	}
	if spec.Retry != nil {
		r := *spec.Retry
		t.retry = &r
	}
	return t, nil
}

// MustTask is NewTask that panics on error, for package-level declarations.
func MustTask(spec TaskSpec) *Task {
	t, err := NewTask(spec)
	if err != nil {
		panic(err)
	}
	return t
}

func checkPorts(v *validation.Validator, field string, ports []Port) {
	names := make([]string, 0, len(ports))
	for i, p := range ports {
		if p.Name == "" {
			v.AddError(fmt.Sprintf("%s[%d]", field, i), "name is required")
			continue
		}
		names = append(names, p.Name)
		v.Check(p.Type.IsSet(), fmt.Sprintf("%s.%s", field, p.Name), "type is required")
	}
	v.Unique(field, names)
}

func (t *Task) Name() string { return t.name }
func (t *Task) Description() string { return t.description }
func (t *Task) Inputs() []Port { return copyPorts(t.inputs) }
func (t *Task) Outputs() []Port { return copyPorts(t.outputs) }
func (t *Task) ConfigSchema() ConfigSchema { return t.schema }
func (t *Task) RequiredResources() []string { return slices.Clone(t.resources) }
func (t *Task) Tags() map[string]string { return maps.Clone(t.tags) }

// Retry returns the task's retry policy, if any.
func (t *Task) Retry() (RetryPolicy, bool) {
	if t.retry == nil {
		return RetryPolicy{}, false
	}
	return *t.retry, true
}

// Compute runs the task's compute function once.
func (t *Task) Compute(ctx context.Context, inv *Invocation) (Outputs, error) {
	return t.compute(ctx, inv)
}

// Service is a request/response unit that can back a task.
type Service[I, O any] interface {
	Name() string
	Execute(ctx context.Context, input I) (O, error)
}

// Names of the ports of Lambda and FromService tasks.
const (
	LambdaInput  = "in"
	LambdaOutput = "result"
)

// Lambda builds a task with one input "in" of type I and one output "result" of type O.
func Lambda[I, O any](name string, fn func(ctx context.Context, in I) (O, error)) (*Task, error) {
	return NewTask(TaskSpec{
		Name:    name,
		Inputs:  []Port{In[I](LambdaInput)},
		Outputs: []Port{Out[O](LambdaOutput)},
		Compute: func(ctx context.Context, inv *Invocation) (Outputs, error) {
			in, err := MustInput[I](inv, LambdaInput)
			if err != nil {
				return nil, err
			}
			out, err := fn(ctx, in)
			if err != nil {
				return nil, err
			}
			return Outputs{LambdaOutput: out}, nil
		},
	})
}

// FromService bridges a Service into a task shaped like Lambda.
func FromService[I, O any](name string, svc Service[I, O]) (*Task, error) {
	if svc == nil {
		return nil, errors.Schema("task %s: service is required", name)
	}
	t, err := Lambda(name, svc.Execute)
	if err != nil {
		return nil, err
	}
	t.description = "service " + svc.Name()
	return t, nil
}

func sortedUnique(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
