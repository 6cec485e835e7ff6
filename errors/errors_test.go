package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestCycleDetected_CopiesMembers(t *testing.T) {
	cycle := []string{"a", "b"}
	err := CycleDetected(cycle)
	cycle[0] = "mutated"

	members, ok := err.Details["cycle"].([]string)
	if !ok {
		t.Fatalf("expected []string cycle detail, got %T", err.Details["cycle"])
	}
	if members[0] != "a" || members[1] != "b" {
		t.Fatalf("expected [a b], got %v", members)
	}
	if err.Message != "cycle: a -> b" {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestTypeMismatch_NamesBothPorts(t *testing.T) {
	err := TypeMismatch("a.out", "int", "b.in", "string")
	if err.Details["producer"] != "a.out" || err.Details["consumer"] != "b.in" {
		t.Fatalf("unexpected details: %v", err.Details)
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"Schema", Schema("bad %s", "field"), ErrCodeSchema, http.StatusBadRequest, false},
		{"InvalidCron", InvalidCron("* *", nil), ErrCodeInvalidCron, http.StatusBadRequest, false},
		{"GraphValidation", GraphValidation("a.in", "unknown port"), ErrCodeGraphValidation, http.StatusUnprocessableEntity, false},
		{"UnsatisfiedInput", UnsatisfiedInput("b", "x"), ErrCodeUnsatisfiedInput, http.StatusUnprocessableEntity, false},
		{"StepFailed", StepFailed("a", nil), ErrCodeStepFailed, http.StatusInternalServerError, true},
		{"Cancelled", Cancelled(nil), ErrCodeCancelled, http.StatusConflict, false},
		{"Hook", Hook("notify", nil), ErrCodeHookError, http.StatusInternalServerError, false},
		{"Resource", Resource("db", "missing", nil), ErrCodeResource, http.StatusServiceUnavailable, true},
		{"DuplicateName", DuplicateName("pipeline", "etl"), ErrCodeDuplicateName, http.StatusConflict, false},
		{"NotFound", NotFound("schedule", "hourly"), ErrCodeNotFound, http.StatusNotFound, false},
		{"Timeout", Timeout("step"), ErrCodeTimeout, http.StatusGatewayTimeout, true},
		{"Validation", Validation("bad input"), ErrCodeInvalidInput, http.StatusBadRequest, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, tc.err.Retryable)
			}
		})
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := GraphValidation("x", "y").WithDetails(map[string]any{"extra": 1})
	if err.Details["target"] != "x" || err.Details["extra"] != 1 {
		t.Fatalf("expected merged details, got %v", err.Details)
	}
}

func TestAppError_Error_Format(t *testing.T) {
	err := StepFailed("a", fmt.Errorf("boom"))
	if err.Error() != "STEP_FAILED: step a failed (cause: boom)" {
		t.Errorf("unexpected format %q", err.Error())
	}
}

func TestHasCode_WalksCauses(t *testing.T) {
	inner := Cancelled(nil)
	outer := StepFailed("a", inner)
	wrapped := fmt.Errorf("driver: %w", outer)

	if !HasCode(wrapped, ErrCodeStepFailed) {
		t.Error("expected STEP_FAILED in chain")
	}
	if !HasCode(wrapped, ErrCodeCancelled) {
		t.Error("expected CANCELLED in chain")
	}
	if HasCode(wrapped, ErrCodeHookError) {
		t.Error("did not expect HOOK_ERROR in chain")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeInternal) {
		t.Error("plain errors carry no code")
	}
}

func TestAppError_AsAppError_Success(t *testing.T) {
	appErr := Internal(nil)
	wrapped := fmt.Errorf("wrap: %w", appErr)

	got, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed for wrapped AppError")
	}
	if got.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", got.Code)
	}
	if IsAppError(fmt.Errorf("not an app error")) {
		t.Error("expected IsAppError to return false for non-AppError")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
	orig := NotFound("pipeline", "etl")
	if Wrap(fmt.Errorf("outer: %w", orig)) != orig {
		t.Error("Wrap should return the AppError in the chain")
	}
	plain := fmt.Errorf("something broke")
	got := Wrap(plain)
	if got.Code != ErrCodeInternal || got.Cause != plain {
		t.Errorf("expected INTERNAL_ERROR wrapping plain error, got %v", got)
	}
}

func TestAppError_ToResponse_Success(t *testing.T) {
	resp := NotFound("pipeline", "etl").ToResponse()
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected code NOT_FOUND in response, got %s", resp.Error.Code)
	}
	if resp.Error.Details["name"] != "etl" {
		t.Error("expected name=etl in response details")
	}
}

func TestAppError_ImplementsErrorInterface(t *testing.T) {
	var err error = DuplicateName("hooks", "alerts")
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		t.Error("stderrors.As should work with AppError")
	}
}
