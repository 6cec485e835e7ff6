package dag

import (
	"container/heap"
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/flowkit/errors"
)

// Node invokes a definition under an alias. The alias is the node's name
// in the graph and defaults to the definition's name.
type Node struct {
	Alias      string
	Definition Definition
}

// Use invokes def under its own name.
func Use(def Definition) Node {
	return Node{Definition: def}
}

// UseAs invokes def under alias.
func UseAs(alias string, def Definition) Node {
	return Node{Alias: alias, Definition: def}
}

// Name returns the alias, or the definition's name when no alias is set.
func (n Node) Name() string {
	if n.Alias != "" {
		return n.Alias
	}
	if n.Definition == nil {
		return ""
	}
	return n.Definition.Name()
}

// GraphSpec declares nodes and the port bindings between them.
type GraphSpec struct {
	Nodes []Node
	Edges []Edge
}

// source is the producer bound to a consumer input.
type source struct {
	node   int
	output string
}

// topology is a structurally valid graph with a deterministic order.
type topology struct {
	nodes      []Node
	names      []string
	index      map[string]int
	order      []int
	inbound    []map[string]source
	upstream   [][]int
	downstream [][]int
}

func (t *topology) lookup(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// buildTopology checks names, edges and types, then sorts the graph.
// subject prefixes error targets.
func buildTopology(g GraphSpec, subject string) (*topology, error) {
	t := &topology{
		nodes:      slices.Clone(g.Nodes),
		names:      make([]string, len(g.Nodes)),
		index:      make(map[string]int, len(g.Nodes)),
		inbound:    make([]map[string]source, len(g.Nodes)),
		upstream:   make([][]int, len(g.Nodes)),
		downstream: make([][]int, len(g.Nodes)),
	}

	for i, n := range t.nodes {
		if n.Definition == nil {
			return nil, errors.GraphValidation(fmt.Sprintf("%snodes[%d]", subject, i), "definition is required")
		}
		name := n.Name()
		switch {
		case name == "":
			return nil, errors.GraphValidation(fmt.Sprintf("%snodes[%d]", subject, i), "name is required")
		case strings.Contains(name, "."):
			return nil, errors.GraphValidation(subject+name, "node names must not contain '.'")
		}
		if _, dup := t.index[name]; dup {
			return nil, errors.GraphValidation(subject+name, "node name is used more than once")
		}
		t.names[i] = name
		t.index[name] = i
		t.inbound[i] = make(map[string]source)
	}

	for _, e := range g.Edges {
		from, ok := t.index[e.From.Node]
		if !ok {
			return nil, errors.GraphValidation(subject+e.From.String(), "unknown node")
		}
		to, ok := t.index[e.To.Node]
		if !ok {
			return nil, errors.GraphValidation(subject+e.To.String(), "unknown node")
		}
		out, ok := findPort(t.nodes[from].Definition.Outputs(), e.From.Port)
		if !ok {
			return nil, errors.GraphValidation(subject+e.From.String(), "unknown output")
		}
		in, ok := findPort(t.nodes[to].Definition.Inputs(), e.To.Port)
		if !ok {
			return nil, errors.GraphValidation(subject+e.To.String(), "unknown input")
		}
		if prev, bound := t.inbound[to][e.To.Port]; bound {
			return nil, errors.GraphValidation(subject+e.To.String(),
				fmt.Sprintf("input is already bound to %s.%s", t.names[prev.node], prev.output))
		}
		if !out.Type.CompatibleWith(in.Type) {
			return nil, errors.TypeMismatch(subject+e.From.String(), out.Type.String(),
				subject+e.To.String(), in.Type.String())
		}
		t.inbound[to][e.To.Port] = source{node: from, output: e.From.Port}
		if !slices.Contains(t.upstream[to], from) {
			t.upstream[to] = append(t.upstream[to], from)
			t.downstream[from] = append(t.downstream[from], to)
		}
	}
	for i := range t.nodes {
		slices.Sort(t.upstream[i])
		slices.Sort(t.downstream[i])
	}

	order, err := t.sort()
	if err != nil {
		return nil, err
	}
	t.order = order
	return t, nil
}

// indexHeap is a min-heap of declaration indices.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// sort runs Kahn's algorithm, always taking the ready node declared first.
func (t *topology) sort() ([]int, error) {
	indegree := make([]int, len(t.nodes))
	ready := &indexHeap{}
	for i := range t.nodes {
		indegree[i] = len(t.upstream[i])
		if indegree[i] == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)

	order := make([]int, 0, len(t.nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, d := range t.downstream[n] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	if len(order) == len(t.nodes) {
		return order, nil
	}
	return nil, errors.CycleDetected(t.findCycle(indegree))
}

// findCycle returns the members of one cycle among the nodes Kahn could not
// order, each once, starting from the earliest declared member.
func (t *topology) findCycle(indegree []int) []string {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(t.nodes))
	var stack []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = grey
		stack = append(stack, n)
		for _, d := range t.downstream[n] {
			if indegree[d] == 0 {
				continue
			}
			switch color[d] {
			case grey:
				start := slices.Index(stack, d)
				cycle = slices.Clone(stack[start:])
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for i := range t.nodes {
		if indegree[i] > 0 && color[i] == white && visit(i) {
			break
		}
	}

	// rotate so the earliest declared member comes first
	if len(cycle) > 0 {
		first := slices.Index(cycle, slices.Min(cycle))
		cycle = append(cycle[first:], cycle[:first]...)
	}
	names := make([]string, len(cycle))
	for i, n := range cycle {
		names[i] = t.names[n]
	}
	return names
}

// levels groups node indices so that each group depends only on earlier groups.
func levelsOf(upstream [][]int, order []int) [][]int {
	depth := make([]int, len(upstream))
	maxDepth := -1
	for _, n := range order {
		for _, u := range upstream[n] {
			depth[n] = max(depth[n], depth[u]+1)
		}
		maxDepth = max(maxDepth, depth[n])
	}
	levels := make([][]int, maxDepth+1)
	for _, n := range order {
		levels[depth[n]] = append(levels[depth[n]], n)
	}
	return levels
}
