package validation

import (
	"fmt"
	"strings"

	"github.com/kbukum/flowkit/errors"
)

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{
		Field:   field,
		Message: message,
	})
}

// Check adds an error when cond is false.
func (v *Validator) Check(cond bool, field, message string) *Validator {
	if !cond {
		v.AddError(field, message)
	}
	return v
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	return v.Check(strings.TrimSpace(value) != "", field, "is required")
}

// Unique reports the names that appear more than once under field.
func (v *Validator) Unique(field string, names []string) *Validator {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			v.AddError(fmt.Sprintf("%s.%s", field, n), "is declared more than once")
		}
		seen[n] = true
	}
	return v
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an INVALID_INPUT AppError if there are validation errors, nil otherwise.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	appErr := errors.Validation(v.message())
	appErr.Details = map[string]any{"fields": v.errors}
	return appErr
}

// Schema returns a SCHEMA_ERROR for subject if there are validation errors, nil otherwise.
func (v *Validator) Schema(subject string) *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	return errors.Schema("%s: %s", subject, v.message()).
		WithDetails(map[string]any{"subject": subject, "fields": v.errors})
}

func (v *Validator) message() string {
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(messages, "; ")
}
