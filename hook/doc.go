// Package hook defines lifecycle hooks and dispatches them.
//
// A hook is scoped to a pipeline run or to one task of it, and triggers on
// success or on failure. The Dispatcher invokes matching hooks in
// declaration order, at most once per (run, scope, target) terminal event.
// A failing or panicking hook is reported as a HOOK_ERROR and never stops
// the hooks after it.
package hook
