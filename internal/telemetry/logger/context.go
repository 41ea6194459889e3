// Package logger provides structured logging for slotmesh.
package logger

import "context"

type contextKey string

const (
	loggerKey contextKey = "slotmesh.logger"
	runIDKey  contextKey = "slotmesh.run_id"
	slotKey   contextKey = "slotmesh.slot_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRunID tags the context with the session run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSlot tags the context with a slot id.
func WithSlot(ctx context.Context, slotID uint32) context.Context {
	return context.WithValue(ctx, slotKey, slotID)
}

// SlotFromContext extracts the slot id from context.
func SlotFromContext(ctx context.Context) (uint32, bool) {
	id, ok := ctx.Value(slotKey).(uint32)
	return id, ok
}

// L returns the context logger enriched with run and slot ids.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)

	if runID := RunIDFromContext(ctx); runID != "" {
		l = l.With("run_id", runID)
	}
	if slotID, ok := SlotFromContext(ctx); ok {
		l = l.With("slot_id", slotID)
	}

	return l
}
