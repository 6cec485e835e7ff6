package dag

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kbukum/flowkit/errors"
)

// NodeID addresses a node inside a composite's arena.
type NodeID int

// Mapping exposes an internal port of a composite under an external name.
type Mapping struct {
	Name        string
	Target      PortRef
	Description string
}

// Expose maps the internal port node.port to the external name.
func Expose(name, node, port string) Mapping {
	return Mapping{Name: name, Target: PortRef{Node: node, Port: port}}
}

// CompositeSpec declares a composite. Inputs and Outputs list the exposed
// ports; their order is the order of the composite's ports.
type CompositeSpec struct {
	Name        string
	Description string
	Nodes       []Node
	Edges       []Edge
	Inputs      []Mapping
	Outputs     []Mapping
	Tags        map[string]string
}

type exposed struct {
	node NodeID
	port string
}

// Composite is a subgraph packaged behind a task-shaped interface.
type Composite struct {
	name        string
	description string
	topo        *topology
	inputs      []Port
	outputs     []Port
	inputMap    []exposed
	outputMap   []exposed
	externals   map[int]map[string]string
	resources   []string
	tags        map[string]string
}

// NewComposite validates spec and builds a Composite.
func NewComposite(spec CompositeSpec) (*Composite, error) {
	if spec.Name == "" {
		return nil, errors.Schema("composite: name is required")
	}
	topo, err := buildTopology(GraphSpec{Nodes: spec.Nodes, Edges: spec.Edges}, spec.Name+".")
	if err != nil {
		return nil, err
	}

	c := &Composite{
		name:        spec.Name,
		description: spec.Description,
		topo:        topo,
		externals:   make(map[int]map[string]string),
		tags:        maps.Clone(spec.Tags),
	}
	target := func(r PortRef) string { return fmt.Sprintf("%s.%s", spec.Name, r) }

	seen := make(map[string]bool)
	for _, m := range spec.Inputs {
		if m.Name == "" || seen["in:"+m.Name] {
			return nil, errors.GraphValidation(target(m.Target), fmt.Sprintf("external input %q is empty or duplicated", m.Name))
		}
		seen["in:"+m.Name] = true
		n, ok := topo.lookup(m.Target.Node)
		if !ok {
			return nil, errors.GraphValidation(target(m.Target), "unknown node")
		}
		p, ok := findPort(topo.nodes[n].Definition.Inputs(), m.Target.Port)
		if !ok {
			return nil, errors.GraphValidation(target(m.Target), "unknown input")
		}
		if _, bound := topo.inbound[n][p.Name]; bound {
			return nil, errors.GraphValidation(target(m.Target), "input is bound internally and cannot be exposed")
		}
		if prev, dup := c.externals[n][p.Name]; dup {
			return nil, errors.GraphValidation(target(m.Target), fmt.Sprintf("input is already exposed as %q", prev))
		}
		if c.externals[n] == nil {
			c.externals[n] = make(map[string]string)
		}
		c.externals[n][p.Name] = m.Name
		c.inputs = append(c.inputs, Port{Name: m.Name, Type: p.Type, Optional: p.Optional, Description: m.Description})
		c.inputMap = append(c.inputMap, exposed{node: NodeID(n), port: p.Name})
	}

	for _, m := range spec.Outputs {
		if m.Name == "" || seen["out:"+m.Name] {
			return nil, errors.GraphValidation(target(m.Target), fmt.Sprintf("external output %q is empty or duplicated", m.Name))
		}
		seen["out:"+m.Name] = true
		n, ok := topo.lookup(m.Target.Node)
		if !ok {
			return nil, errors.GraphValidation(target(m.Target), "unknown node")
		}
		p, ok := findPort(topo.nodes[n].Definition.Outputs(), m.Target.Port)
		if !ok {
			return nil, errors.GraphValidation(target(m.Target), "unknown output")
		}
		c.outputs = append(c.outputs, Port{Name: m.Name, Type: p.Type, Optional: p.Optional, Description: m.Description})
		c.outputMap = append(c.outputMap, exposed{node: NodeID(n), port: p.Name})
	}

	var resources []string
	for i, n := range topo.nodes {
		for _, p := range n.Definition.Inputs() {
			_, bound := topo.inbound[i][p.Name]
			_, ext := c.externals[i][p.Name]
			if !bound && !ext && !p.Optional {
				return nil, errors.GraphValidation(fmt.Sprintf("%s.%s.%s", spec.Name, topo.names[i], p.Name),
					"required input is neither bound nor exposed")
			}
		}
		resources = append(resources, n.Definition.RequiredResources()...)
	}
	c.resources = sortedUnique(resources)
	return c, nil
}

func (c *Composite) Name() string { return c.name }
func (c *Composite) Description() string { return c.description }
func (c *Composite) Inputs() []Port { return copyPorts(c.inputs) }
func (c *Composite) Outputs() []Port { return copyPorts(c.outputs) }
func (c *Composite) RequiredResources() []string { return slices.Clone(c.resources) }
func (c *Composite) Tags() map[string]string { return maps.Clone(c.tags) }

// ConfigSchema is empty; internal steps are configured by dotted handle.
func (c *Composite) ConfigSchema() ConfigSchema { return ConfigSchema{} }

// Len returns the number of internal nodes.
func (c *Composite) Len() int { return len(c.topo.nodes) }

// NodeID returns the arena handle of an internal node.
func (c *Composite) NodeID(name string) (NodeID, bool) {
	i, ok := c.topo.lookup(name)
	return NodeID(i), ok
}

// Node returns the internal node for id.
func (c *Composite) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(c.topo.nodes) {
		return Node{}, false
	}
	return c.topo.nodes[id], true
}

// NodeNames returns internal node names in execution order.
func (c *Composite) NodeNames() []string {
	names := make([]string, len(c.topo.order))
	for i, n := range c.topo.order {
		names[i] = c.topo.names[n]
	}
	return names
}

// InputTarget returns the internal port behind an external input.
func (c *Composite) InputTarget(name string) (PortRef, bool) {
	return c.target(c.inputs, c.inputMap, name)
}

// OutputSource returns the internal port behind an external output.
func (c *Composite) OutputSource(name string) (PortRef, bool) {
	return c.target(c.outputs, c.outputMap, name)
}

func (c *Composite) target(ports []Port, m []exposed, name string) (PortRef, bool) {
	for i, p := range ports {
		if p.Name == name {
			return PortRef{Node: c.topo.names[m[i].node], Port: m[i].port}, true
		}
	}
	return PortRef{}, false
}
