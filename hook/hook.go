package hook

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/flowkit/errors"
)

// ScopeKind is what a hook observes.
type ScopeKind string

const (
	ScopePipeline ScopeKind = "pipeline"
	ScopeTask     ScopeKind = "task"
)

// Scope selects the events a hook observes. Task is the step handle for
// task-scoped hooks.
type Scope struct {
	Kind ScopeKind
	Task string
}

// Pipeline scopes a hook to whole runs.
func Pipeline() Scope { return Scope{Kind: ScopePipeline} }

// Task scopes a hook to the step with the given handle.
func Task(handle string) Scope { return Scope{Kind: ScopeTask, Task: handle} }

func (s Scope) String() string {
	if s.Kind == ScopeTask {
		return fmt.Sprintf("task:%s", s.Task)
	}
	return string(s.Kind)
}

// Trigger is the terminal outcome a hook reacts to.
type Trigger string

const (
	OnSuccess Trigger = "success"
	OnFailure Trigger = "failure"
)

// Callback is invoked with the event that matched the hook.
type Callback func(ctx context.Context, ev Event) error

// Definition is a hook.
type Definition struct {
	Name     string
	Scope    Scope
	Trigger  Trigger
	Callback Callback
}

// Success declares a hook run on successful completion.
func Success(name string, scope Scope, cb Callback) Definition {
	return Definition{Name: name, Scope: scope, Trigger: OnSuccess, Callback: cb}
}

// Failure declares a hook run on failure.
func Failure(name string, scope Scope, cb Callback) Definition {
	return Definition{Name: name, Scope: scope, Trigger: OnFailure, Callback: cb}
}

// Validate checks that the hook is complete.
func (d Definition) Validate() error {
	switch {
	case d.Name == "":
		return errors.Schema("hook: name is required")
	case d.Callback == nil:
		return errors.Schema("hook %s: callback is required", d.Name)
	case d.Trigger != OnSuccess && d.Trigger != OnFailure:
		return errors.Schema("hook %s: unknown trigger %q", d.Name, d.Trigger)
	}
	switch d.Scope.Kind {
	case ScopePipeline:
		if d.Scope.Task != "" {
			return errors.Schema("hook %s: pipeline scope takes no task", d.Name)
		}
	case ScopeTask:
		if d.Scope.Task == "" {
			return errors.Schema("hook %s: task scope needs a task handle", d.Name)
		}
	default:
		return errors.Schema("hook %s: unknown scope %q", d.Name, d.Scope.Kind)
	}
	return nil
}

func (d Definition) matches(ev Event) bool {
	if d.Trigger != ev.Outcome || d.Scope.Kind != ev.Scope.Kind {
		return false
	}
	return d.Scope.Kind == ScopePipeline || d.Scope.Task == ev.Scope.Task
}

// Event describes a terminal outcome of a run or of one of its steps.
type Event struct {
	RunID    string
	Pipeline string
	Scope    Scope
	Outcome  Trigger
	// Err is the failure cause for OnFailure events.
	Err      error
	Outputs  map[string]any
	Tags     map[string]string
	Duration time.Duration
}

// Set is a named group of hooks that can be registered and attached to runs.
type Set struct {
	Name  string
	Hooks []Definition
}

// NewSet validates hooks and groups them under name.
func NewSet(name string, hooks ...Definition) (Set, error) {
	if name == "" {
		return Set{}, errors.Schema("hook set: name is required")
	}
	seen := make(map[string]bool, len(hooks))
	for _, h := range hooks {
		if err := h.Validate(); err != nil {
			return Set{}, err
		}
		if seen[h.Name] {
			return Set{}, errors.DuplicateName("hook", h.Name)
		}
		seen[h.Name] = true
	}
	return Set{Name: name, Hooks: append([]Definition(nil), hooks...)}, nil
}
