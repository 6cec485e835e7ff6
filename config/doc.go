// Package config loads engine configuration from a YAML file, a .env file
// and the process environment.
//
// Files are resolved per service name: ./cmd/<service>/config.yml, then
// ./config/config.yml, then ./config.yml (also one and two directories up).
// Environment variables override file values; FLOWKIT_EXECUTOR_MAX_PARALLEL
// sets executor.max_parallel.
//
//	cfg, err := config.Load("flowkit-worker")
package config
