package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// Dispatcher invokes hooks for terminal events. It is safe for concurrent use.
type Dispatcher struct {
	hooks []Definition
	log   *logger.Logger

	mu    sync.Mutex
	fired map[eventKey]bool
}

type eventKey struct {
	run  string
	kind ScopeKind
	task string
}

// NewDispatcher creates a dispatcher over hooks in declaration order.
func NewDispatcher(hooks []Definition, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		hooks: append([]Definition(nil), hooks...),
		log:   logger.OrComponent(log, "hook"),
		fired: make(map[eventKey]bool),
	}
}

// Dispatch runs every hook matching ev. A repeated dispatch of the same
// (run, scope, target) event invokes nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []*errors.AppError {
	key := eventKey{run: ev.RunID, kind: ev.Scope.Kind, task: ev.Scope.Task}
	d.mu.Lock()
	if d.fired[key] {
		d.mu.Unlock()
		d.log.Warn("Duplicate terminal event ignored", logger.Fields(
			logger.FieldRunID, ev.RunID, "scope", ev.Scope.String(), logger.FieldStatus, string(ev.Outcome)))
		return nil
	}
	d.fired[key] = true
	d.mu.Unlock()

	var errs []*errors.AppError
	for _, h := range d.hooks {
		if !h.matches(ev) {
			continue
		}
		start := time.Now()
		if err := invoke(ctx, h, ev); err != nil {
			appErr := errors.Hook(h.Name, err).WithDetail("scope", ev.Scope.String())
			d.log.Error("Hook failed", logger.MergeWithError(logger.Fields(
				logger.FieldHook, h.Name, logger.FieldRunID, ev.RunID), err))
			errs = append(errs, appErr)
			continue
		}
		d.log.Debug("Hook completed", logger.MergeWithDuration(logger.Fields(
			logger.FieldHook, h.Name, logger.FieldRunID, ev.RunID), time.Since(start)))
	}
	return errs
}

// Forget drops the exactly-once record of a run.
func (d *Dispatcher) Forget(runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.fired {
		if k.run == runID {
			delete(d.fired, k)
		}
	}
}

func invoke(ctx context.Context, h Definition, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Callback(ctx, ev)
}
