package repository

import (
	"maps"
	"slices"
	"sync"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/schedule"
)

// Kind is a category of registered definition.
type Kind string

const (
	KindPipeline Kind = "pipeline"
	KindSchedule Kind = "schedule"
	KindHookSet  Kind = "hooks"
)

// Kinds lists every kind in display order.
func Kinds() []Kind {
	return []Kind{KindPipeline, KindSchedule, KindHookSet}
}

// ParseKind converts a name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(Kinds(), k) {
		return "", errors.NotFound("kind", s)
	}
	return k, nil
}

// Registry holds definitions by kind and name. It is safe for concurrent use.
type Registry struct {
	name string
	log  *logger.Logger

	mu      sync.RWMutex
	entries map[Kind]map[string]any
}

// New creates an empty registry.
func New(name string, log *logger.Logger) *Registry {
	r := &Registry{
		name:    name,
		log:     logger.OrComponent(log, "repository"),
		entries: make(map[Kind]map[string]any, len(Kinds())),
	}
	for _, k := range Kinds() {
		r.entries[k] = make(map[string]any)
	}
	return r
}

// Name returns the registry's name.
func (r *Registry) Name() string { return r.name }

// Register adds def under kind and name. def must be a *dag.Pipeline,
// a *schedule.Definition or a hook.Set matching kind.
func (r *Registry) Register(kind Kind, name string, def any) error {
	if name == "" {
		return errors.Schema("%s: name is required", kind)
	}
	if err := checkKind(kind, def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[kind][name]; dup {
		return errors.DuplicateName(string(kind), name)
	}
	r.entries[kind][name] = def
	r.log.Debug("Definition registered", logger.Fields("kind", string(kind), "name", name))
	return nil
}

func checkKind(kind Kind, def any) error {
	var ok bool
	switch kind {
	case KindPipeline:
		var p *dag.Pipeline
		p, ok = def.(*dag.Pipeline)
		ok = ok && p != nil
	case KindSchedule:
		var s *schedule.Definition
		s, ok = def.(*schedule.Definition)
		ok = ok && s != nil
	case KindHookSet:
		_, ok = def.(hook.Set)
	default:
		return errors.Schema("unknown kind %q", kind)
	}
	if !ok {
		return errors.Schema("%s: unexpected definition type %T", kind, def)
	}
	return nil
}

// Lookup returns the definition registered under kind and name.
func (r *Registry) Lookup(kind Kind, name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.entries[kind]
	if !ok {
		return nil, errors.NotFound("kind", string(kind))
	}
	def, ok := byName[name]
	if !ok {
		return nil, errors.NotFound(string(kind), name)
	}
	return def, nil
}

// ListByKind returns the sorted names registered under kind.
func (r *Registry) ListByKind(kind Kind) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.entries[kind]
	if !ok {
		return nil, errors.NotFound("kind", string(kind))
	}
	return slices.Sorted(maps.Keys(byName)), nil
}

// Count returns the number of definitions of kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[kind])
}

// RegisterPipeline registers p under its name.
func (r *Registry) RegisterPipeline(p *dag.Pipeline) error {
	if p == nil {
		return errors.Schema("pipeline is required")
	}
	return r.Register(KindPipeline, p.Name(), p)
}

// Pipeline returns the named pipeline.
func (r *Registry) Pipeline(name string) (*dag.Pipeline, error) {
	def, err := r.Lookup(KindPipeline, name)
	if err != nil {
		return nil, err
	}
	return def.(*dag.Pipeline), nil
}

// RegisterSchedule registers s under its name. Its pipeline must already
// be registered here under the pipeline's name.
func (r *Registry) RegisterSchedule(s *schedule.Definition) error {
	if s == nil {
		return errors.Schema("schedule is required")
	}
	p, err := r.Pipeline(s.Pipeline().Name())
	if err != nil {
		return errors.Schema("schedule %s: pipeline %q is not registered", s.Name(), s.Pipeline().Name()).WithCause(err)
	}
	if p != s.Pipeline() {
		return errors.Schema("schedule %s: pipeline %q differs from the registered one", s.Name(), p.Name())
	}
	return r.Register(KindSchedule, s.Name(), s)
}

// Schedule returns the named schedule.
func (r *Registry) Schedule(name string) (*schedule.Definition, error) {
	def, err := r.Lookup(KindSchedule, name)
	if err != nil {
		return nil, err
	}
	return def.(*schedule.Definition), nil
}

// Schedules returns every schedule sorted by name.
func (r *Registry) Schedules() []*schedule.Definition {
	names, _ := r.ListByKind(KindSchedule)
	out := make([]*schedule.Definition, 0, len(names))
	for _, name := range names {
		if s, err := r.Schedule(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// RegisterHooks validates hooks and registers them as a set named name.
func (r *Registry) RegisterHooks(name string, hooks ...hook.Definition) error {
	set, err := hook.NewSet(name, hooks...)
	if err != nil {
		return err
	}
	return r.Register(KindHookSet, name, set)
}

// Hooks returns the hooks of the named set.
func (r *Registry) Hooks(name string) ([]hook.Definition, error) {
	def, err := r.Lookup(KindHookSet, name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(def.(hook.Set).Hooks), nil
}
