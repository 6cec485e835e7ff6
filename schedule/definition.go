package schedule

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/validation"
)

// CatchUpPolicy decides what happens to ticks missed while nothing evaluated the schedule.
type CatchUpPolicy string

const (
	// CatchUpIgnore drops the backlog.
	CatchUpIgnore CatchUpPolicy = "ignore"
	// CatchUpFireAll requests a run for every missed tick.
	CatchUpFireAll CatchUpPolicy = "fire-all"
	// CatchUpFireLatest requests a run for the most recent missed tick only.
	CatchUpFireLatest CatchUpPolicy = "fire-latest"
)

// Dialect selects the cron field layout.
type Dialect string

const (
	// DialectStandard is minute hour day-of-month month day-of-week.
	DialectStandard Dialect = "standard"
	// DialectSeconds prefixes the standard fields with seconds.
	DialectSeconds Dialect = "seconds"
)

// Status is whether a schedule produces runs.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// TickContext is passed to the config and tags functions of a schedule.
type TickContext struct {
	Schedule string
	Time     time.Time
}

// ConfigFunc computes the run config of a tick.
type ConfigFunc func(tc TickContext) (dag.RunConfig, error)

// TagsFunc computes extra run tags for a tick.
type TagsFunc func(tc TickContext) (map[string]string, error)

// Spec declares a schedule.
type Spec struct {
	Name        string        `validate:"required"`
	Description string        `validate:"-"`
	Pipeline    *dag.Pipeline `validate:"required"`
	Cron        string        `validate:"required"`
	Dialect     Dialect       `validate:"omitempty,oneof=standard seconds"`
	// Timezone is an IANA name. Empty means the engine's default timezone.
	Timezone string `validate:"omitempty,timezone"`
	// Start is the earliest tick the schedule produces.
	Start         time.Time     `validate:"-"`
	CatchUp       CatchUpPolicy `mapstructure:"catch_up" validate:"required,oneof=ignore fire-all fire-latest"`
	Config        ConfigFunc    `validate:"-"`
	Tags          TagsFunc      `validate:"-"`
	Selection     []string      `validate:"-"`
	DefaultStatus Status        `mapstructure:"default_status" validate:"omitempty,oneof=running stopped"`
}

// Definition is a validated schedule.
type Definition struct {
	spec     Spec
	schedule cron.Schedule
	location *time.Location
}

var parsers = map[Dialect]cron.Parser{
	DialectStandard: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	DialectSeconds:  cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
}

// New validates spec and parses its cron expression.
func New(spec Spec) (*Definition, error) {
	if spec.Dialect == "" {
		spec.Dialect = DialectStandard
	}
	if spec.DefaultStatus == "" {
		spec.DefaultStatus = StatusRunning
	}
	if err := validation.Validate(spec); err != nil {
		return nil, errors.Schema("schedule %s: %v", spec.Name, err).WithCause(err)
	}

	sched, err := parseCron(spec.Cron, spec.Dialect)
	if err != nil {
		return nil, err
	}

	var loc *time.Location
	if spec.Timezone != "" {
		loc, err = time.LoadLocation(spec.Timezone)
		if err != nil {
			return nil, errors.Schema("schedule %s: unknown timezone %q", spec.Name, spec.Timezone).WithCause(err)
		}
	}

	if len(spec.Selection) > 0 {
		if _, err := spec.Pipeline.Select(spec.Selection...); err != nil {
			return nil, errors.Schema("schedule %s: invalid selection %q", spec.Name, spec.Selection).WithCause(err)
		}
	}

	spec.Selection = slices.Clone(spec.Selection)
	return &Definition{spec: spec, schedule: sched, location: loc}, nil
}

func parseCron(expr string, dialect Dialect) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(trimmed, "TZ="), strings.HasPrefix(trimmed, "CRON_TZ="):
		return nil, errors.InvalidCron(expr, fmt.Errorf("timezone belongs in the schedule's Timezone field"))
	case strings.HasPrefix(trimmed, "@every"):
		return nil, errors.InvalidCron(expr, fmt.Errorf("@every is not aligned to the calendar"))
	}
	sched, err := parsers[dialect].Parse(trimmed)
	if err != nil {
		return nil, errors.InvalidCron(expr, err)
	}
	return sched, nil
}

func (d *Definition) Name() string { return d.spec.Name }
func (d *Definition) Description() string { return d.spec.Description }
func (d *Definition) Pipeline() *dag.Pipeline { return d.spec.Pipeline }
func (d *Definition) Cron() string { return d.spec.Cron }
func (d *Definition) Dialect() Dialect { return d.spec.Dialect }

// Location returns the schedule's timezone, or nil when the engine default applies.
func (d *Definition) Location() *time.Location { return d.location }
func (d *Definition) Start() time.Time { return d.spec.Start }
func (d *Definition) CatchUp() CatchUpPolicy { return d.spec.CatchUp }
func (d *Definition) DefaultStatus() Status { return d.spec.DefaultStatus }
func (d *Definition) Selection() []string { return slices.Clone(d.spec.Selection) }

// Zone returns the schedule's own timezone, else fallback, else UTC.
func (d *Definition) Zone(fallback *time.Location) *time.Location {
	switch {
	case d.location != nil:
		return d.location
	case fallback != nil:
		return fallback
	}
	return time.UTC
}

// Next returns the first cron match strictly after t in loc, or in the
// schedule's own timezone when it has one. The zero time means no further
// match. Next follows the cron expression literally across offset changes;
// Engine.Ticks and Engine.Evaluate fire repeated wall times once and
// skipped ones after the gap.
func (d *Definition) Next(t time.Time, loc *time.Location) time.Time {
	return d.schedule.Next(t.In(d.Zone(loc)))
}

// tick computes the config and tags of the tick at t.
func (d *Definition) tick(t time.Time) (Tick, error) {
	tc := TickContext{Schedule: d.spec.Name, Time: t}
	tick := Tick{Schedule: d.spec.Name, Time: t}
	if d.spec.Config != nil {
		cfg, err := d.spec.Config(tc)
		if err != nil {
			return Tick{}, errors.Schema("schedule %s: run config for tick %s: %v",
				d.spec.Name, t.Format(time.RFC3339), err).WithCause(err)
		}
		tick.Config = cfg
	}
	tags := map[string]string{
		TagSchedule: d.spec.Name,
		TagTick:     t.Format(time.RFC3339),
	}
	if d.spec.Tags != nil {
		extra, err := d.spec.Tags(tc)
		if err != nil {
			return Tick{}, errors.Schema("schedule %s: tags for tick %s: %v",
				d.spec.Name, t.Format(time.RFC3339), err).WithCause(err)
		}
		maps.Copy(tags, extra)
	}
	tick.Tags = tags
	return tick, nil
}

// Run tags added to every tick.
const (
	TagSchedule = "flowkit/schedule"
	TagTick     = "flowkit/tick"
)
