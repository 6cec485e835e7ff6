// Package testutil provides test doubles for pipelines built with the dag
// package: mock tasks that count their calls, a step runner that records
// execution order and injects failures, and hooks that record the events
// they receive.
//
//	extract := testutil.NewMockTask(dag.TaskSpec{
//		Name:    "extract",
//		Outputs: []dag.Port{dag.Out[int]("rows")},
//	}, dag.Outputs{"rows": 3}, nil)
//
//	hooks := testutil.NewRecordingHooks()
//	p, _ := dag.NewPipeline(dag.PipelineSpec{
//		Name:  "etl",
//		Nodes: []dag.Node{dag.Use(extract.Task())},
//		Hooks: []hook.Definition{hooks.Hook("notify", hook.Pipeline(), hook.OnFailure)},
//	})
package testutil
