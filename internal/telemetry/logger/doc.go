// Package logger provides structured logging for slotmesh.
//
//   - logger.go: slog-backed Logger, level control, process default
//   - context.go: context propagation of the logger, run id and slot id
//   - redact.go: masking of secrets such as the server password
//
// Every slot-scoped log line carries a "slot_id" attribute so a single
// connection can be followed through registry, router and scheduler.
package logger
