// Package executor runs compiled plans.
//
// An Executor walks a dag.Plan in dependency order on a bounded worker
// pool. Leaf steps go through a StepRunner; composite steps execute their
// sub-plan. A failed step skips everything downstream of it while
// independent branches keep running. Task hooks fire as each step
// finishes and pipeline hooks fire once the run is terminal.
//
//	exec, err := executor.New(executor.Options{
//		Config:    executor.Config{MaxParallel: 8},
//		Resources: []resource.Definition{resource.Value("db", db)},
//	})
//	res, err := exec.Execute(ctx, pipeline, dag.RunConfig{})
//	if res.Status == executor.RunFailure { ... }
//
// Execute returns an error only when the run cannot start, for example when
// the pipeline does not compile. Step failures, cancellation and resource
// problems are reported in the RunResult.
package executor
