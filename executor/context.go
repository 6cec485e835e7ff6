package executor

import "context"

// RunInfo identifies the run a step belongs to.
type RunInfo struct {
	RunID    string
	Pipeline string
}

type runInfoKey struct{}

type attemptsKey struct{}

// ContextWithRunInfo stores info in ctx.
func ContextWithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFromContext returns the run info stored in ctx.
func RunInfoFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}

// ReportAttempts records how many compute attempts the current step used.
// Runners that retry call it before returning; without a report a step
// counts one attempt.
func ReportAttempts(ctx context.Context, n int) {
	if p, ok := ctx.Value(attemptsKey{}).(*int); ok {
		*p = n
	}
}

func withAttempts(ctx context.Context) (context.Context, *int) {
	n := new(int)
	return context.WithValue(ctx, attemptsKey{}, n), n
}

func attemptsFrom(ctx context.Context) int {
	if p, ok := ctx.Value(attemptsKey{}).(*int); ok {
		return *p
	}
	return 0
}
