// Package resource provisions shared resources for runs.
//
// A Definition names a resource key and how to acquire and release its
// handle. A Manager acquires every key a plan needs before the first step
// starts, counting the steps that use it; each finished step calls Done and
// the handle is released when its count reaches zero. ReleaseAll releases
// whatever is left in reverse acquisition order.
package resource
