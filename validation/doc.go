// Package validation provides struct-tag and programmatic validation.
//
// Struct tag validation (backed by go-playground/validator) checks config
// structs and definition specs; Var checks a single value against a tag
// expression, which is how config-field validators are evaluated.
// Programmatic validation collects field errors and reports them as one
// AppError.
//
// # Struct Tag Validation
//
//	type ExecutorConfig struct {
//	    MaxParallel int `validate:"min=0,max=1024"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Check(name != "", "name", "is required")
//	err := v.Schema("task")
package validation
