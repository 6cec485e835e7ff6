package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Definition errors ---

// Schema creates a SCHEMA_ERROR for a malformed declaration.
func Schema(format string, args ...any) *AppError {
	return &AppError{
		Code: ErrCodeSchema, Message: fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// InvalidCron creates an INVALID_CRON error for an unparseable expression.
func InvalidCron(expr string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInvalidCron, Message: fmt.Sprintf("invalid cron expression %q", expr),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"expression": expr}, Cause: cause,
	}
}

// --- Compile errors ---

// GraphValidation creates a GRAPH_VALIDATION_ERROR naming the offending target.
func GraphValidation(target, reason string) *AppError {
	return &AppError{
		Code: ErrCodeGraphValidation, Message: fmt.Sprintf("%s: %s", target, reason),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"target": target},
	}
}

// CycleDetected creates a CYCLE_DETECTED error listing each cycle member once.
func CycleDetected(cycle []string) *AppError {
	members := append([]string(nil), cycle...)
	return &AppError{
		Code: ErrCodeCycleDetected, Message: "cycle: " + strings.Join(members, " -> "),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"cycle": members},
	}
}

// TypeMismatch creates a TYPE_MISMATCH error naming both ports of an edge.
func TypeMismatch(producer, producerType, consumer, consumerType string) *AppError {
	return &AppError{
		Code: ErrCodeTypeMismatch,
		Message: fmt.Sprintf("%s (%s) is not compatible with %s (%s)",
			producer, producerType, consumer, consumerType),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"producer": producer, "consumer": consumer},
	}
}

// UnsatisfiedInput creates an UNSATISFIED_INPUT error for a required input with no source.
func UnsatisfiedInput(step, input string) *AppError {
	return &AppError{
		Code: ErrCodeUnsatisfiedInput, Message: fmt.Sprintf("input %s.%s has no producer and no configured value", step, input),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"step": step, "input": input},
	}
}

// --- Execution errors ---

// StepFailed creates a STEP_FAILED error wrapping a compute failure.
func StepFailed(step string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStepFailed, Message: fmt.Sprintf("step %s failed", step),
		HTTPStatus: http.StatusInternalServerError, Retryable: true,
		Details: map[string]any{"step": step}, Cause: cause,
	}
}

// Cancelled creates a CANCELLED error.
func Cancelled(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: "run cancelled",
		HTTPStatus: http.StatusConflict, Retryable: false, Cause: cause,
	}
}

// Hook creates a HOOK_ERROR for a failed hook callback.
func Hook(hook string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeHookError, Message: fmt.Sprintf("hook %s failed", hook),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"hook": hook}, Cause: cause,
	}
}

// Resource creates a RESOURCE_ERROR for a resource key.
func Resource(key, reason string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeResource, Message: fmt.Sprintf("resource %s: %s", key, reason),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"resource": key}, Cause: cause,
	}
}

// InvalidTransition creates an INVALID_TRANSITION error.
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidTransition, Message: fmt.Sprintf("invalid transition %s -> %s", from, to),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"from": from, "to": to},
	}
}

// --- Registry errors ---

// DuplicateName creates a DUPLICATE_NAME error for a name reused within a kind.
func DuplicateName(kind, name string) *AppError {
	return &AppError{
		Code: ErrCodeDuplicateName, Message: fmt.Sprintf("%s %q is already registered", kind, name),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"kind": kind, "name": name},
	}
}

// NotFound creates a NOT_FOUND error for a missing definition.
func NotFound(kind, name string) *AppError {
	details := map[string]any{"kind": kind}
	if name != "" {
		details["name"] = name
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q was not found", kind, name),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// --- Generic errors ---

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Timeout creates a new AppError for an operation that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
