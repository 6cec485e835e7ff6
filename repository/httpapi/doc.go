// Package httpapi exposes a repository.Registry as read-only gin routes
// so host tooling can discover registered pipelines, schedules and hook
// sets.
//
//	r := gin.New()
//	httpapi.Mount(r, reg, httpapi.Config{}, log)
//
// Routes under the base path (default /repository):
//
//	GET /repository              kinds with definition counts
//	GET /repository/:kind        summaries of every definition of a kind
//	GET /repository/:kind/:name  summary of one definition
package httpapi
