package resource

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// AcquireFunc creates a resource handle.
type AcquireFunc func(ctx context.Context) (any, error)

// ReleaseFunc disposes of a handle created by AcquireFunc.
type ReleaseFunc func(ctx context.Context, handle any) error

// Definition describes how to obtain a resource. Release is optional.
type Definition struct {
	Key         string
	Description string
	Acquire     AcquireFunc
	Release     ReleaseFunc
}

// Value defines a resource whose handle is v and needs no release.
func Value(key string, v any) Definition {
	return Definition{
		Key:     key,
		Acquire: func(context.Context) (any, error) { return v, nil },
	}
}

// entry holds an acquired handle and its remaining users.
type entry struct {
	key      string
	handle   any
	refs     int
	released bool
}

// Manager tracks the resources of one run. Handles are shared read-only
// between concurrent steps.
type Manager struct {
	defs           map[string]Definition
	log            *logger.Logger
	releaseTimeout time.Duration

	mu      sync.Mutex
	entries []*entry
	lookup  map[string]*entry
}

// NewManager validates defs and creates a manager.
func NewManager(defs []Definition, log *logger.Logger) (*Manager, error) {
	m := &Manager{
		defs:           make(map[string]Definition, len(defs)),
		log:            logger.OrComponent(log, "resource"),
		releaseTimeout: 10 * time.Second,
		lookup:         make(map[string]*entry),
	}
	for _, d := range defs {
		if d.Key == "" || d.Acquire == nil {
			return nil, errors.Schema("resource %q: key and acquire function are required", d.Key)
		}
		if _, dup := m.defs[d.Key]; dup {
			return nil, errors.DuplicateName("resource", d.Key)
		}
		m.defs[d.Key] = d
	}
	return m, nil
}

// Keys returns the defined keys in sorted order.
func (m *Manager) Keys() []string {
	return slices.Sorted(maps.Keys(m.defs))
}

// Provision acquires every key in counts, in sorted key order, holding
// counts[key] references. On failure the handles acquired so far are released.
func (m *Manager) Provision(ctx context.Context, counts map[string]int) error {
	keys := slices.Sorted(maps.Keys(counts))
	for _, key := range keys {
		if _, ok := m.defs[key]; !ok {
			return errors.Resource(key, "no definition provided", nil)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Debug("Provisioning resources", logger.Fields("count", len(keys)))
	for _, key := range keys {
		if counts[key] <= 0 {
			continue
		}
		if e, ok := m.lookup[key]; ok && !e.released {
			e.refs += counts[key]
			continue
		}
		handle, err := m.defs[key].Acquire(ctx)
		if err != nil {
			m.log.Error("Resource acquire failed", logger.MergeWithError(logger.Fields(logger.FieldResource, key), err))
			m.releaseAllLocked(ctx)
			return errors.Resource(key, "acquire failed", err)
		}
		e := &entry{key: key, handle: handle, refs: counts[key]}
		m.entries = append(m.entries, e)
		m.lookup[key] = e
		m.log.Debug("Resource acquired", logger.Fields(logger.FieldResource, key, "refs", e.refs))
	}
	return nil
}

// Handle returns the handle of an acquired, unreleased key.
func (m *Manager) Handle(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup[key]
	if !ok || e.released {
		return nil, false
	}
	return e.handle, true
}

// Handles returns the handles of keys. Missing keys are left out.
func (m *Manager) Handles(keys []string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if e, ok := m.lookup[key]; ok && !e.released {
			out[key] = e.handle
		}
	}
	return out
}

// Refs returns the remaining reference count of key.
func (m *Manager) Refs(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.lookup[key]; ok && !e.released {
		return e.refs
	}
	return 0
}

// Done drops one reference to key and releases the handle at zero.
func (m *Manager) Done(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup[key]
	if !ok || e.released {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	return m.release(ctx, e)
}

// ReleaseAll releases every remaining handle in reverse acquisition order.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseAllLocked(ctx)
}

func (m *Manager) releaseAllLocked(ctx context.Context) error {
	var first error
	for i := len(m.entries) - 1; i >= 0; i-- {
		if err := m.release(ctx, m.entries[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) release(ctx context.Context, e *entry) error {
	if e.released {
		return nil
	}
	e.released = true
	e.refs = 0
	rel := m.defs[e.key].Release
	if rel == nil {
		return nil
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.releaseTimeout)
	defer cancel()
	if err := rel(releaseCtx, e.handle); err != nil {
		m.log.Error("Resource release failed", logger.MergeWithError(logger.Fields(logger.FieldResource, e.key), err))
		return errors.Resource(e.key, "release failed", err)
	}
	m.log.Debug("Resource released", logger.Fields(logger.FieldResource, e.key))
	return nil
}
