// Package repository groups named pipelines, schedules and hook sets.
//
// A Registry is an explicit value; there is no process-wide registry.
// Names are unique within a kind and lookups of unknown names return
// NOT_FOUND errors.
package repository
