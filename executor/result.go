package executor

import (
	"time"

	"github.com/kbukum/flowkit/errors"
)

// StepStatus is the terminal state of a step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Skip reasons.
const (
	ReasonUpstreamFailed = "upstream step did not succeed"
	ReasonCancelled      = "run cancelled"
	ReasonNotProvisioned = "resources could not be provisioned"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Handle   string
	Status   StepStatus
	Outputs  map[string]any
	Error    *errors.AppError
	Attempts int
	Duration time.Duration
	// Reason explains a skipped step.
	Reason string
	// Children holds the sub-plan results of a composite step.
	Children []StepResult
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID    string
	Pipeline string
	Status   RunStatus
	// Reason is the error code that ended a failed run.
	Reason errors.ErrorCode
	Error  *errors.AppError
	// Partial is set on a failed run in which some steps succeeded.
	Partial    bool
	Steps      []StepResult
	HookErrors []*errors.AppError
	Tags       map[string]string
	Duration   time.Duration
}

// Step returns the result of the step with the given handle, looking into
// composite children for dotted handles.
func (r *RunResult) Step(handle string) (StepResult, bool) {
	return findStep(r.Steps, handle)
}

func findStep(steps []StepResult, handle string) (StepResult, bool) {
	for _, s := range steps {
		if s.Handle == handle {
			return s, true
		}
		if found, ok := findStep(s.Children, handle); ok {
			return found, true
		}
	}
	return StepResult{}, false
}

// Count returns how many top-level steps ended with status.
func (r *RunResult) Count(status StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// Outputs returns the published outputs of a step, or nil.
func (r *RunResult) Outputs(handle string) map[string]any {
	s, ok := r.Step(handle)
	if !ok {
		return nil
	}
	return s.Outputs
}
