package dag

import (
	"maps"
	"slices"
)

// BindingKind says where a step input comes from.
type BindingKind int

const (
	// BindingAbsent leaves an optional input unset.
	BindingAbsent BindingKind = iota
	// BindingUpstream reads an output of an earlier step.
	BindingUpstream
	// BindingConfig uses a value from run config.
	BindingConfig
	// BindingExternal reads an input of the enclosing composite.
	BindingExternal
)

func (k BindingKind) String() string {
	switch k {
	case BindingUpstream:
		return "upstream"
	case BindingConfig:
		return "config"
	case BindingExternal:
		return "external"
	default:
		return "absent"
	}
}

// Binding resolves one input of a step.
type Binding struct {
	Input    string
	Kind     BindingKind
	Step     int
	Output   string
	Value    any
	External string
}

// Step is one unit of a plan.
type Step struct {
	Index      int
	Handle     string
	Name       string
	Definition Definition
	Inputs     []Binding
	Config     Config
	Resources  []string
	Upstream   []int
	// SubPlan is the compiled internal graph of a composite step.
	SubPlan *Plan
}

// Task returns the task behind the step, if it is a task step.
func (s *Step) Task() (*Task, bool) {
	t, ok := s.Definition.(*Task)
	return t, ok
}

// IsComposite reports whether the step runs a sub-plan.
func (s *Step) IsComposite() bool {
	return s.SubPlan != nil
}

// Binding returns the binding of the named input.
func (s *Step) Binding(input string) (Binding, bool) {
	for _, b := range s.Inputs {
		if b.Input == input {
			return b, true
		}
	}
	return Binding{}, false
}

// Export maps a composite output to the step output producing it.
type Export struct {
	Name     string
	Step     int
	Output   string
	Optional bool
}

// Plan is a compiled graph. Steps are ordered so that no step precedes
// the steps it reads from.
type Plan struct {
	steps    []*Step
	byHandle map[string]int
	exports  []Export
	tags     map[string]string
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Steps returns the steps in execution order.
func (p *Plan) Steps() []*Step { return slices.Clone(p.steps) }

// StepAt returns the step at index i.
func (p *Plan) StepAt(i int) *Step { return p.steps[i] }

// Step returns the step with the given handle.
func (p *Plan) Step(handle string) (*Step, bool) {
	i, ok := p.byHandle[handle]
	if !ok {
		return nil, false
	}
	return p.steps[i], true
}

// Handles returns step handles in execution order.
func (p *Plan) Handles() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Handle
	}
	return out
}

// Exports returns the composite outputs of a sub-plan.
func (p *Plan) Exports() []Export { return slices.Clone(p.exports) }

// Tags returns the run tags the plan was compiled with.
func (p *Plan) Tags() map[string]string { return maps.Clone(p.tags) }

// Levels groups step indices into sets that may run concurrently.
func (p *Plan) Levels() [][]int {
	upstream := make([][]int, len(p.steps))
	order := make([]int, len(p.steps))
	for i, s := range p.steps {
		upstream[i] = s.Upstream
		order[i] = i
	}
	return levelsOf(upstream, order)
}

// Downstream returns, for each step, the indices of steps reading from it.
func (p *Plan) Downstream() [][]int {
	out := make([][]int, len(p.steps))
	for i, s := range p.steps {
		for _, u := range s.Upstream {
			out[u] = append(out[u], i)
		}
	}
	return out
}

// Resources counts, per resource key, the steps that require it.
func (p *Plan) Resources() map[string]int {
	counts := make(map[string]int)
	for _, s := range p.steps {
		for _, key := range s.Resources {
			counts[key]++
		}
	}
	return counts
}
