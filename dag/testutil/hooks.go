package testutil

import (
	"context"
	"sync"

	"github.com/kbukum/flowkit/hook"
)

// RecordedEvent is one hook invocation.
type RecordedEvent struct {
	Hook  string
	Event hook.Event
}

// RecordingHooks builds hooks that record every event they receive.
type RecordingHooks struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// NewRecordingHooks creates an empty recorder.
func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{}
}

// Hook returns a recording hook.
func (r *RecordingHooks) Hook(name string, scope hook.Scope, trigger hook.Trigger) hook.Definition {
	return r.Failing(name, scope, trigger, nil)
}

// Failing returns a hook that records its event and then returns err.
func (r *RecordingHooks) Failing(name string, scope hook.Scope, trigger hook.Trigger, err error) hook.Definition {
	return hook.Definition{
		Name:    name,
		Scope:   scope,
		Trigger: trigger,
		Callback: func(_ context.Context, ev hook.Event) error {
			r.mu.Lock()
			r.events = append(r.events, RecordedEvent{Hook: name, Event: ev})
			r.mu.Unlock()
			return err
		},
	}
}

// Events returns the recorded events in invocation order.
func (r *RecordingHooks) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Count returns how many times the named hook fired.
func (r *RecordingHooks) Count(name string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Hook == name {
			n++
		}
	}
	return n
}
