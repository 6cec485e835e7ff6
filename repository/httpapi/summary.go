package httpapi

import (
	"time"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/schedule"
)

// KindSummary counts the definitions of one kind.
type KindSummary struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// PortSummary describes one port of a node.
type PortSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// NodeSummary describes one node of a pipeline.
type NodeSummary struct {
	Name       string        `json:"name"`
	Definition string        `json:"definition"`
	Composite  bool          `json:"composite,omitempty"`
	Inputs     []PortSummary `json:"inputs"`
	Outputs    []PortSummary `json:"outputs"`
	Resources  []string      `json:"resources,omitempty"`
}

// HookSummary describes one hook without its callback.
type HookSummary struct {
	Name    string `json:"name"`
	Scope   string `json:"scope"`
	Trigger string `json:"trigger"`
}

// PipelineSummary describes a registered pipeline.
type PipelineSummary struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Nodes       []NodeSummary     `json:"nodes"`
	Edges       []string          `json:"edges"`
	Resources   []string          `json:"resources,omitempty"`
	Hooks       []HookSummary     `json:"hooks,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ScheduleSummary describes a registered schedule.
type ScheduleSummary struct {
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Pipeline      string     `json:"pipeline"`
	Cron          string     `json:"cron"`
	Dialect       string     `json:"dialect"`
	Timezone      string     `json:"timezone,omitempty"`
	Start         *time.Time `json:"start,omitempty"`
	CatchUp       string     `json:"catch_up"`
	DefaultStatus string     `json:"default_status"`
	Selection     []string   `json:"selection,omitempty"`
}

// HookSetSummary describes a registered hook set.
type HookSetSummary struct {
	Name  string        `json:"name"`
	Hooks []HookSummary `json:"hooks"`
}

func summarizePipeline(p *dag.Pipeline) PipelineSummary {
	g := p.Graph()
	s := PipelineSummary{
		Name:        p.Name(),
		Description: p.Description(),
		Nodes:       make([]NodeSummary, 0, len(g.Nodes)),
		Edges:       make([]string, 0, len(g.Edges)),
		Resources:   p.Resources(),
		Hooks:       summarizeHooks(p.Hooks()),
		Tags:        p.Tags(),
	}
	for _, n := range g.Nodes {
		_, composite := n.Definition.(*dag.Composite)
		s.Nodes = append(s.Nodes, NodeSummary{
			Name:       n.Name(),
			Definition: n.Definition.Name(),
			Composite:  composite,
			Inputs:     summarizePorts(n.Definition.Inputs()),
			Outputs:    summarizePorts(n.Definition.Outputs()),
			Resources:  n.Definition.RequiredResources(),
		})
	}
	for _, e := range g.Edges {
		s.Edges = append(s.Edges, e.From.String()+" -> "+e.To.String())
	}
	return s
}

func summarizePorts(ports []dag.Port) []PortSummary {
	out := make([]PortSummary, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortSummary{Name: p.Name, Type: p.Type.String(), Optional: p.Optional})
	}
	return out
}

func summarizeSchedule(d *schedule.Definition) ScheduleSummary {
	s := ScheduleSummary{
		Name:          d.Name(),
		Description:   d.Description(),
		Pipeline:      d.Pipeline().Name(),
		Cron:          d.Cron(),
		Dialect:       string(d.Dialect()),
		CatchUp:       string(d.CatchUp()),
		DefaultStatus: string(d.DefaultStatus()),
		Selection:     d.Selection(),
	}
	if loc := d.Location(); loc != nil {
		s.Timezone = loc.String()
	}
	if start := d.Start(); !start.IsZero() {
		s.Start = &start
	}
	return s
}

func summarizeHooks(hooks []hook.Definition) []HookSummary {
	if len(hooks) == 0 {
		return nil
	}
	out := make([]HookSummary, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, HookSummary{Name: h.Name, Scope: h.Scope.String(), Trigger: string(h.Trigger)})
	}
	return out
}
