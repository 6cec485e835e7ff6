package dag

import (
	"maps"
	"slices"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
)

// PipelineSpec declares a pipeline.
type PipelineSpec struct {
	Name        string
	Description string
	Nodes       []Node
	Edges       []Edge
	// Defaults is merged under every run config.
	Defaults RunConfig
	// Resources, when set, must cover every key the nodes require.
	Resources []string
	Hooks     []hook.Definition
	Tags      map[string]string
}

// Pipeline is a named, structurally valid graph. It is immutable and
// shared by pointer between runs and schedules.
type Pipeline struct {
	name        string
	description string
	graph       GraphSpec
	topo        *topology
	defaults    RunConfig
	resources   []string
	hooks       []hook.Definition
	tags        map[string]string
}

// NewPipeline validates spec and builds a Pipeline. Edges, types and
// cycles are checked here; config and inputs are checked by Plan.
func NewPipeline(spec PipelineSpec) (*Pipeline, error) {
	if spec.Name == "" {
		return nil, errors.Schema("pipeline: name is required")
	}
	graph := GraphSpec{Nodes: slices.Clone(spec.Nodes), Edges: slices.Clone(spec.Edges)}
	topo, err := buildTopology(graph, "")
	if err != nil {
		return nil, err
	}

	var required []string
	for _, n := range topo.nodes {
		required = append(required, n.Definition.RequiredResources()...)
	}
	resources := sortedUnique(required)
	if len(spec.Resources) > 0 {
		declared := sortedUnique(spec.Resources)
		for _, key := range resources {
			if !slices.Contains(declared, key) {
				return nil, errors.Schema("pipeline %s: resource %q is required but not declared", spec.Name, key).
					WithDetail("resource", key)
			}
		}
		resources = declared
	}

	known := make(map[string]bool)
	collectHandles(topo, "", known)
	for _, h := range spec.Hooks {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if h.Scope.Kind == hook.ScopeTask && !known[h.Scope.Task] {
			return nil, errors.GraphValidation(h.Scope.Task, "hook "+h.Name+" targets an unknown task")
		}
	}
	for _, handle := range slices.Sorted(maps.Keys(spec.Defaults.Tasks)) {
		if !known[handle] {
			return nil, errors.Schema("pipeline %s: defaults name unknown task %q", spec.Name, handle)
		}
	}

	return &Pipeline{
		name:        spec.Name,
		description: spec.Description,
		graph:       graph,
		topo:        topo,
		defaults:    RunConfig{}.Merge(spec.Defaults),
		resources:   resources,
		hooks:       slices.Clone(spec.Hooks),
		tags:        maps.Clone(spec.Tags),
	}, nil
}

func (p *Pipeline) Name() string { return p.name }
func (p *Pipeline) Description() string { return p.description }
func (p *Pipeline) Resources() []string { return slices.Clone(p.resources) }
func (p *Pipeline) Hooks() []hook.Definition { return slices.Clone(p.hooks) }
func (p *Pipeline) Tags() map[string]string { return maps.Clone(p.tags) }
func (p *Pipeline) Defaults() RunConfig { return RunConfig{}.Merge(p.defaults) }

// Graph returns a copy of the pipeline's graph.
func (p *Pipeline) Graph() GraphSpec {
	return GraphSpec{Nodes: slices.Clone(p.graph.Nodes), Edges: slices.Clone(p.graph.Edges)}
}

// NodeNames returns node names in execution order.
func (p *Pipeline) NodeNames() []string {
	names := make([]string, len(p.topo.order))
	for i, n := range p.topo.order {
		names[i] = p.topo.names[n]
	}
	return names
}

// Node returns the named top-level node.
func (p *Pipeline) Node(name string) (Node, bool) {
	i, ok := p.topo.lookup(name)
	if !ok {
		return Node{}, false
	}
	return p.topo.nodes[i], true
}

// Select resolves selection queries and returns the matched node names in
// execution order.
func (p *Pipeline) Select(queries ...string) ([]string, error) {
	selected, err := p.topo.selectSteps(queries)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range p.topo.order {
		if selected[p.topo.names[n]] {
			names = append(names, p.topo.names[n])
		}
	}
	return names, nil
}

// Plan merges cfg over the pipeline defaults and compiles the graph.
func (p *Pipeline) Plan(cfg RunConfig, opts ...CompileOption) (*Plan, error) {
	merged := p.defaults.Merge(cfg)
	merged.Tags = mergeTags(p.tags, merged.Tags)
	return compileTopology(p.topo, merged, opts...)
}

func mergeTags(base, over map[string]string) map[string]string {
	if len(base) == 0 && len(over) == 0 {
		return nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(over))
	}
	maps.Copy(out, over)
	return out
}
