// Package resilience retries failing operations with exponential backoff.
//
// The executor's local step runner wraps task compute functions with Retry
// when a task declares a retry policy:
//
//	out, attempts, err := resilience.Retry(ctx, cfg, func(ctx context.Context, attempt int) (dag.Outputs, error) {
//	    return task.Compute(ctx, inv)
//	})
package resilience
