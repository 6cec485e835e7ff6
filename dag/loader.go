package dag

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
)

// Document is the YAML form of a pipeline.
type Document struct {
	// Name is the pipeline identifier.
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Includes lists documents whose nodes and edges are merged in (recursive).
	Includes []string `yaml:"includes,omitempty"`
	// Nodes invoke catalog definitions.
	Nodes []NodeDoc `yaml:"nodes"`
	// Edges are written "node.output" -> "node.input".
	Edges     []EdgeDoc         `yaml:"edges,omitempty"`
	Resources []string          `yaml:"resources,omitempty"`
	Defaults  RunConfig         `yaml:"defaults,omitempty"`
	Hooks     []HookDoc         `yaml:"hooks,omitempty"`
	Tags      map[string]string `yaml:"tags,omitempty"`
}

// NodeDoc invokes the catalog definition Task under Name.
type NodeDoc struct {
	Name string `yaml:"name,omitempty"`
	Task string `yaml:"task"`
}

// EdgeDoc binds an output to an input.
type EdgeDoc struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// HookDoc attaches a catalog hook. An empty Task scopes it to the pipeline.
type HookDoc struct {
	Hook string `yaml:"hook"`
	On   string `yaml:"on"`
	Task string `yaml:"task,omitempty"`
}

// ParseDocument reads a pipeline document. Unknown fields are rejected.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Schema("pipeline document: %v", err).WithCause(err)
	}
	if doc.Name == "" {
		return nil, errors.Schema("pipeline document: name is required")
	}
	return &doc, nil
}

// DocumentLoader loads pipeline documents by name.
type DocumentLoader interface {
	Load(name string) (*Document, error)
}

// FileLoader loads documents from YAML files on disk.
type FileLoader struct {
	dirs []string
}

// NewFileLoader creates a loader that searches dirs for {name}.yaml and {name}.yml.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load searches the configured directories, then their subdirectories.
// A file that exists but does not parse is an error, not a miss.
func (l *FileLoader) Load(name string) (*Document, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			for _, path := range append([]string{filepath.Join(dir, name+ext)}, matches...) {
				doc, err := LoadDocument(path)
				if err == nil {
					return doc, nil
				}
				if !stderrors.Is(err, fs.ErrNotExist) {
					return nil, err
				}
			}
		}
	}
	return nil, errors.NotFound("pipeline document", name).WithDetail("dirs", l.dirs)
}

// LoadDocument reads one document file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("dag: parsing %s: %w", path, err)
	}
	return doc, nil
}

// LoadPipeline resolves doc's includes through loader, looks up nodes and
// hooks in cat and builds the pipeline. loader may be nil when doc has no includes.
func LoadPipeline(doc *Document, cat *Catalog, loader DocumentLoader) (*Pipeline, error) {
	merged, err := resolveDocument(doc, loader, make(map[string]bool), make(map[string]bool))
	if err != nil {
		return nil, err
	}

	spec := PipelineSpec{
		Name:        doc.Name,
		Description: doc.Description,
		Defaults:    merged.Defaults,
		Resources:   merged.Resources,
		Tags:        merged.Tags,
	}
	for _, n := range merged.Nodes {
		def, ok := cat.Get(n.Task)
		if !ok {
			return nil, errors.NotFound("definition", n.Task).WithDetail("pipeline", doc.Name)
		}
		spec.Nodes = append(spec.Nodes, UseAs(n.Name, def))
	}
	for _, e := range merged.Edges {
		from, err := parsePortRef(e.From)
		if err != nil {
			return nil, err
		}
		to, err := parsePortRef(e.To)
		if err != nil {
			return nil, err
		}
		spec.Edges = append(spec.Edges, Edge{From: from, To: to})
	}
	for _, h := range merged.Hooks {
		tmpl, ok := cat.Hook(h.Hook)
		if !ok {
			return nil, errors.NotFound("hook", h.Hook).WithDetail("pipeline", doc.Name)
		}
		tmpl.Trigger = hook.Trigger(h.On)
		tmpl.Scope = hook.Pipeline()
		if h.Task != "" {
			tmpl.Scope = hook.Task(h.Task)
		}
		spec.Hooks = append(spec.Hooks, tmpl)
	}
	return NewPipeline(spec)
}

// resolveDocument flattens includes. Nodes seen earlier win, so diamond
// includes contribute their nodes once.
func resolveDocument(doc *Document, loader DocumentLoader, stack, resolved map[string]bool) (*Document, error) {
	if stack[doc.Name] {
		return nil, errors.Schema("circular include detected for pipeline %q", doc.Name)
	}
	stack[doc.Name] = true
	defer delete(stack, doc.Name)

	out := &Document{Name: doc.Name}
	seenNode := make(map[string]bool)
	seenEdge := make(map[EdgeDoc]bool)
	merge := func(d *Document) {
		for _, n := range d.Nodes {
			if n.Name == "" {
				n.Name = n.Task
			}
			if seenNode[n.Name] {
				continue
			}
			seenNode[n.Name] = true
			out.Nodes = append(out.Nodes, n)
		}
		for _, e := range d.Edges {
			if !seenEdge[e] {
				seenEdge[e] = true
				out.Edges = append(out.Edges, e)
			}
		}
		out.Resources = append(out.Resources, d.Resources...)
		out.Hooks = append(out.Hooks, d.Hooks...)
		out.Defaults = out.Defaults.Merge(d.Defaults)
		out.Tags = mergeTags(out.Tags, d.Tags)
	}

	for _, name := range doc.Includes {
		if resolved[name] {
			continue
		}
		if loader == nil {
			return nil, errors.Schema("pipeline %s: include %q needs a document loader", doc.Name, name)
		}
		sub, err := loader.Load(name)
		if err != nil {
			return nil, fmt.Errorf("dag: loading include %q: %w", name, err)
		}
		flat, err := resolveDocument(sub, loader, stack, resolved)
		if err != nil {
			return nil, err
		}
		merge(flat)
	}
	merge(doc)

	resolved[doc.Name] = true
	return out, nil
}

func parsePortRef(s string) (PortRef, error) {
	node, port, ok := strings.Cut(s, ".")
	if !ok || node == "" || port == "" {
		return PortRef{}, errors.Schema("edge endpoint %q must be written node.port", s)
	}
	return PortRef{Node: node, Port: port}, nil
}
