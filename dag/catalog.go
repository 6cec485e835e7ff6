package dag

import (
	"sort"
	"sync"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
)

// Catalog provides named definitions and hooks for pipelines loaded from YAML.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	hooks map[string]hook.Definition
}

// NewCatalog creates a catalog holding defs.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make(map[string]Definition),
		hooks: make(map[string]hook.Definition),
	}
	for _, d := range defs {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a task or composite under its name.
func (c *Catalog) Add(def Definition) error {
	if def == nil || def.Name() == "" {
		return errors.Schema("catalog: definition with a name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.defs[def.Name()]; dup {
		return errors.DuplicateName("definition", def.Name())
	}
	c.defs[def.Name()] = def
	return nil
}

// AddHook registers a hook template under its name. The scope and trigger
// written in YAML replace the template's.
func (c *Catalog) AddHook(h hook.Definition) error {
	if h.Name == "" || h.Callback == nil {
		return errors.Schema("catalog: hook with a name and callback is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.hooks[h.Name]; dup {
		return errors.DuplicateName("hook", h.Name)
	}
	c.hooks[h.Name] = h
	return nil
}

// Get retrieves a definition by name.
func (c *Catalog) Get(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// Hook retrieves a hook by name.
func (c *Catalog) Hook(name string) (hook.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.hooks[name]
	return h, ok
}

// List returns sorted names of all definitions.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
