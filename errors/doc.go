// Package errors provides the structured error taxonomy shared by the
// definition, compilation, scheduling and execution layers.
//
// Every failure is an *AppError carrying a machine-readable ErrorCode.
// Definition-time failures (SCHEMA_ERROR, INVALID_CRON) are returned by
// constructors, compile-time failures (GRAPH_VALIDATION_ERROR,
// CYCLE_DETECTED, TYPE_MISMATCH, UNSATISFIED_INPUT) by the compiler, and
// execution-time failures (STEP_FAILED, CANCELLED, HOOK_ERROR) are captured
// into run results instead of being returned.
package errors
