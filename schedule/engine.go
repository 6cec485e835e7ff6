package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/validation"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// MaxTicks caps the runs a fire-all evaluation requests; the most recent ticks are kept.
	MaxTicks int `mapstructure:"max_ticks" validate:"min=0"`
	// MaxWindowTicks rejects windows holding more ticks than this.
	MaxWindowTicks int `mapstructure:"max_window_ticks" validate:"min=0"`
	// DefaultTimezone applies to schedules without a timezone.
	DefaultTimezone string `mapstructure:"default_timezone" validate:"omitempty,timezone"`
}

// ApplyDefaults sets default values for unset fields.
func (c *EngineConfig) ApplyDefaults() {
	if c.MaxTicks == 0 {
		c.MaxTicks = 100
	}
	if c.MaxWindowTicks == 0 {
		c.MaxWindowTicks = 10000
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}
}

// Validate checks the configuration.
func (c *EngineConfig) Validate() error {
	return validation.Validate(c)
}

// Tick is one schedule boundary with its computed run config and tags.
type Tick struct {
	Schedule string
	Time     time.Time
	Config   dag.RunConfig
	Tags     map[string]string
}

// RunRequest asks the host to start a run for a tick.
type RunRequest struct {
	// RunKey is the same for every evaluation of the same schedule tick.
	RunKey    string
	Schedule  string
	Pipeline  *dag.Pipeline
	TickTime  time.Time
	Config    dag.RunConfig
	Tags      map[string]string
	Selection []string
}

// Evaluation is the outcome of evaluating one schedule over a window.
type Evaluation struct {
	Schedule string
	Status   Status
	Requests []RunRequest
	// Skipped lists backlog ticks dropped by the catch-up policy.
	Skipped []time.Time
	// AlreadyFired counts ticks in the window that history reports as fired.
	AlreadyFired int
}

// History is a read-only view of fired ticks and schedule status.
type History interface {
	Fired(schedule string, tick time.Time) bool
	LastFired(schedule string) (time.Time, bool)
	Status(schedule string) (Status, bool)
}

// Engine computes ticks and run requests. It keeps no state between calls.
type Engine struct {
	cfg     EngineConfig
	loc     *time.Location
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewEngine validates cfg and creates an engine.
func NewEngine(cfg EngineConfig, log *logger.Logger) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, errors.Schema("schedule engine: unknown timezone %q", cfg.DefaultTimezone).WithCause(err)
	}
	return &Engine{cfg: cfg, loc: loc, log: logger.OrComponent(log, "schedule")}, nil
}

// WithMetrics returns a copy of e that counts evaluated ticks by outcome.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	cp := *e
	cp.metrics = m
	return &cp
}

// Ticks returns the tick boundaries in [since, until), never before the
// definition's start time, with their run config and tags. A window holding
// more than MaxWindowTicks ticks is rejected before any config is computed.
func (e *Engine) Ticks(def *Definition, since, until time.Time) ([]Tick, error) {
	times, err := e.times(def, since, until)
	if err != nil {
		return nil, err
	}
	ticks := make([]Tick, 0, len(times))
	for _, t := range times {
		tick, err := def.tick(t)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func (e *Engine) times(def *Definition, since, until time.Time) ([]time.Time, error) {
	if start := def.Start(); start.After(since) {
		since = start
	}
	var out []time.Time
	emit := func(t time.Time) error {
		if t.Before(since) || !t.Before(until) || (len(out) > 0 && !t.After(out[len(out)-1])) {
			return nil
		}
		if len(out) == e.cfg.MaxWindowTicks {
			return errors.InvalidInput("until", fmt.Sprintf("window holds more than %d ticks", e.cfg.MaxWindowTicks)).
				WithDetail("schedule", def.Name())
		}
		out = append(out, t)
		return nil
	}

	prev := since.Add(-time.Nanosecond).In(def.Zone(e.loc))
	for {
		t := def.Next(prev, e.loc)
		done := t.IsZero() || !t.Before(until)
		hi := t
		if done {
			hi = until
		}
		for _, s := range def.skippedWall(prev, hi) {
			if err := emit(s); err != nil {
				return nil, err
			}
		}
		if done {
			return out, nil
		}
		if !repeatedWall(t) {
			if err := emit(t); err != nil {
				return nil, err
			}
		}
		prev = t
	}
}

// Evaluate returns the run requests def owes for [since, until). Ticks
// already fired, or not after the last fired tick, are never requested
// again. When more than one tick is pending the catch-up policy applies.
func (e *Engine) Evaluate(ctx context.Context, def *Definition, since, until time.Time, history History) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}

	status := def.DefaultStatus()
	if history != nil {
		if s, ok := history.Status(def.Name()); ok {
			status = s
		}
	}
	ev := &Evaluation{Schedule: def.Name(), Status: status}
	if status == StatusStopped {
		return ev, nil
	}

	var pending []time.Time
	last, hasLast := time.Time{}, false
	if history != nil {
		last, hasLast = history.LastFired(def.Name())
	}
	times, err := e.times(def, since, until)
	if err != nil {
		return nil, err
	}
	for _, t := range times {
		if history != nil && (history.Fired(def.Name(), t) || (hasLast && !t.After(last))) {
			ev.AlreadyFired++
			continue
		}
		pending = append(pending, t)
	}

	keep := pending
	if len(pending) > 1 {
		switch def.CatchUp() {
		case CatchUpIgnore:
			keep = nil
		case CatchUpFireLatest:
			keep = pending[len(pending)-1:]
		case CatchUpFireAll:
			if e.cfg.MaxTicks > 0 && len(pending) > e.cfg.MaxTicks {
				keep = pending[len(pending)-e.cfg.MaxTicks:]
			}
		}
		ev.Skipped = pending[:len(pending)-len(keep)]
	}

	for _, t := range keep {
		tick, err := def.tick(t)
		if err != nil {
			return nil, err
		}
		ev.Requests = append(ev.Requests, RunRequest{
			RunKey:    RunKey(def.Name(), t),
			Schedule:  def.Name(),
			Pipeline:  def.Pipeline(),
			TickTime:  t,
			Config:    tick.Config,
			Tags:      tick.Tags,
			Selection: def.Selection(),
		})
	}

	if e.metrics != nil {
		e.metrics.RecordTicks(ctx, def.Name(), "requested", len(ev.Requests))
		e.metrics.RecordTicks(ctx, def.Name(), "skipped", len(ev.Skipped))
		e.metrics.RecordTicks(ctx, def.Name(), "already_fired", ev.AlreadyFired)
	}
	if len(ev.Skipped) > 0 {
		e.log.Info("Schedule backlog skipped", logger.Fields(
			logger.FieldSchedule, def.Name(), "skipped", len(ev.Skipped), "policy", string(def.CatchUp())))
	}
	e.log.Debug("Schedule evaluated", logger.Fields(
		logger.FieldSchedule, def.Name(), "requests", len(ev.Requests), "already_fired", ev.AlreadyFired))
	return ev, nil
}

var runKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("flowkit/schedule"))

// RunKey derives the run key of a schedule tick.
func RunKey(schedule string, tick time.Time) string {
	return uuid.NewSHA1(runKeySpace, []byte(schedule+"\x00"+tick.UTC().Format(time.RFC3339Nano))).String()
}
