package contextkeys

import "context"

type runIDKeyType struct{}

var runIDKey = runIDKeyType{}

// ContextWithRunID tags the context with the ingestion run identifier.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run identifier or an empty string.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}
