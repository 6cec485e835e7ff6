package dag

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kbukum/flowkit/errors"
)

// CompileOption adjusts compilation.
type CompileOption func(*compileOptions)

type compileOptions struct {
	selection []string
}

// WithSelection keeps only the top-level steps matched by queries: a step
// name with optional "*" or "+" traversal operators ("*load", "load+",
// "++load*"). Inputs of a selected step whose producer is not selected
// must come from run config or be optional.
func WithSelection(names ...string) CompileOption {
	return func(o *compileOptions) {
		o.selection = append(o.selection, names...)
	}
}

// Compile validates g and resolves cfg into a plan.
func Compile(g GraphSpec, cfg RunConfig, opts ...CompileOption) (*Plan, error) {
	topo, err := buildTopology(g, "")
	if err != nil {
		return nil, err
	}
	return compileTopology(topo, cfg, opts...)
}

func compileTopology(topo *topology, cfg RunConfig, opts ...CompileOption) (*Plan, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}

	var selected map[string]bool
	if len(o.selection) > 0 {
		var err error
		if selected, err = topo.selectSteps(o.selection); err != nil {
			return nil, err
		}
	}

	known := make(map[string]bool)
	collectHandles(topo, "", known)
	for _, handle := range slices.Sorted(maps.Keys(cfg.Tasks)) {
		if !known[handle] {
			return nil, errors.Schema("run config: unknown task %q", handle).WithDetail("step", handle)
		}
	}

	p, err := compileGraph(topo, nil, cfg, "", selected)
	if err != nil {
		return nil, err
	}
	p.tags = maps.Clone(cfg.Tags)
	return p, nil
}

func collectHandles(topo *topology, prefix string, into map[string]bool) {
	for i, n := range topo.nodes {
		handle := prefix + topo.names[i]
		into[handle] = true
		if c, ok := n.Definition.(*Composite); ok {
			collectHandles(c.topo, handle+".", into)
		}
	}
}

// compileGraph turns one level of a graph into a plan. externals maps
// node inputs to the enclosing composite's input names.
func compileGraph(topo *topology, externals map[int]map[string]string, cfg RunConfig, prefix string, selected map[string]bool) (*Plan, error) {
	p := &Plan{byHandle: make(map[string]int, len(topo.nodes))}
	stepOf := make(map[int]int, len(topo.nodes))

	for _, n := range topo.order {
		name := topo.names[n]
		if selected != nil && !selected[name] {
			continue
		}
		def := topo.nodes[n].Definition
		handle := prefix + name
		tc := cfg.Task(handle)

		conf, err := def.ConfigSchema().Resolve(tc.Config)
		if err != nil {
			return nil, errors.Schema("step %s: %v", handle, err).WithCause(err).WithDetail("step", handle)
		}

		inputs := def.Inputs()
		for _, key := range slices.Sorted(maps.Keys(tc.Inputs)) {
			if _, ok := findPort(inputs, key); !ok {
				return nil, errors.Schema("step %s: unknown input %q", handle, key).WithDetail("step", handle)
			}
		}

		step := &Step{
			Index:      len(p.steps),
			Handle:     handle,
			Name:       name,
			Definition: def,
			Config:     conf,
			Resources:  def.RequiredResources(),
		}
		for _, port := range inputs {
			b, err := bind(topo, externals, stepOf, n, handle, port, tc)
			if err != nil {
				return nil, err
			}
			if b.Kind == BindingUpstream && !slices.Contains(step.Upstream, b.Step) {
				step.Upstream = append(step.Upstream, b.Step)
			}
			step.Inputs = append(step.Inputs, b)
		}
		slices.Sort(step.Upstream)

		if c, ok := def.(*Composite); ok {
			sub, err := compileGraph(c.topo, c.externals, cfg, handle+".", nil)
			if err != nil {
				return nil, err
			}
			for i, out := range c.outputs {
				src := c.outputMap[i]
				sub.exports = append(sub.exports, Export{
					Name:     out.Name,
					Step:     sub.byHandle[handle+"."+c.topo.names[src.node]],
					Output:   src.port,
					Optional: out.Optional,
				})
			}
			step.SubPlan = sub
		}

		stepOf[n] = step.Index
		p.byHandle[handle] = step.Index
		p.steps = append(p.steps, step)
	}
	return p, nil
}

func bind(topo *topology, externals map[int]map[string]string, stepOf map[int]int, n int, handle string, port Port, tc TaskConfig) (Binding, error) {
	b := Binding{Input: port.Name}
	if src, ok := topo.inbound[n][port.Name]; ok {
		if si, selected := stepOf[src.node]; selected {
			b.Kind = BindingUpstream
			b.Step = si
			b.Output = src.output
			return b, nil
		}
	}
	if ext, ok := externals[n][port.Name]; ok {
		b.Kind = BindingExternal
		b.External = ext
		return b, nil
	}
	if v, ok := tc.Inputs[port.Name]; ok {
		val, ok := port.Type.convert(v)
		if !ok {
			return b, errors.TypeMismatch("run config", fmt.Sprintf("%T", v),
				handle+"."+port.Name, port.Type.String())
		}
		b.Kind = BindingConfig
		b.Value = val
		return b, nil
	}
	if port.Optional {
		b.Kind = BindingAbsent
		return b, nil
	}
	return b, errors.UnsatisfiedInput(handle, port.Name)
}
