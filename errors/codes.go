package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Definition errors
const (
	// ErrCodeSchema indicates a malformed task, port or config declaration.
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"
	// ErrCodeInvalidCron indicates a cron expression or timezone that cannot be parsed.
	ErrCodeInvalidCron ErrorCode = "INVALID_CRON"
)

// Compile errors
const (
	// ErrCodeGraphValidation indicates a structurally invalid graph.
	ErrCodeGraphValidation ErrorCode = "GRAPH_VALIDATION_ERROR"
	// ErrCodeCycleDetected indicates the dependency graph contains a cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeTypeMismatch indicates an edge joins incompatible port types.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
	// ErrCodeUnsatisfiedInput indicates a required input with no binding.
	ErrCodeUnsatisfiedInput ErrorCode = "UNSATISFIED_INPUT"
)

// Execution errors
const (
	// ErrCodeStepFailed indicates a compute step returned a failure.
	ErrCodeStepFailed ErrorCode = "STEP_FAILED"
	// ErrCodeCancelled indicates a run was cancelled before completion.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeHookError indicates a hook callback failed.
	ErrCodeHookError ErrorCode = "HOOK_ERROR"
	// ErrCodeResource indicates a resource could not be acquired or released.
	ErrCodeResource ErrorCode = "RESOURCE_ERROR"
	// ErrCodeInvalidTransition indicates a run state machine violation.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Registry errors
const (
	// ErrCodeDuplicateName indicates a name is already registered under a kind.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"
	// ErrCodeNotFound indicates the requested definition was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Generic errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:    true,
	ErrCodeResource:   true,
	ErrCodeStepFailed: true,
	ErrCodeInternal:   false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
