package core

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxKeyRunID contextKey = "csv_run_id"

// ContextWithRunID tags ctx with the id used for the next parse call.
// Parse generates a fresh id when none is set.
func ContextWithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, id)
}

// RunIDFromContext returns the run id stored in ctx, if any.
func RunIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKeyRunID).(uuid.UUID)
	return id, ok
}

// runID returns the id from ctx or a new random one.
func runID(ctx context.Context) uuid.UUID {
	if id, ok := RunIDFromContext(ctx); ok {
		return id
	}
	return uuid.New()
}
