// Package dag defines tasks, composites and pipelines and compiles them
// into execution plans.
//
// A Task is a named, typed unit of work with ordered input and output
// ports, a configuration schema, a compute step and required resource keys.
// A Composite wraps an internal graph of tasks behind a task-shaped port
// interface. Both satisfy Definition, so a graph can mix them freely.
//
// Compile validates a graph (unique names, known ports, single binding per
// input, compatible types, acyclicity) and resolves a RunConfig into a Plan:
// steps in dependency order, ties broken by declaration order, with every
// input bound to an upstream output, a configured value, or nothing when
// the input is optional. Composites are never inlined; their internal plan
// is compiled into the composite step's SubPlan.
//
// Everything in this package is pure: no goroutines, no I/O except the
// YAML loaders, and definitions are immutable once built.
package dag
