// Package logger provides structured logging for flowkit components
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers with structured fields. Components accept an
// optional *Logger and fall back to a component-tagged global logger.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("executor")
//	log.Info("run finished", logger.Fields(logger.FieldRunID, id, logger.FieldStatus, "success"))
package logger
