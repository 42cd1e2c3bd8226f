package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID     contextKey = "trace_id"
	keyUserID      contextKey = "user_id"
	keyJobID       contextKey = "job_id"
	keyInferenceID contextKey = "inference_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithUserID adds user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithJobID adds the service job ID to context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, keyJobID, jobID)
}

// JobID extracts the service job ID from context.
func JobID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyJobID).(string)
	return v, ok && v != ""
}

// WithInferenceID adds the async inference ID to context.
func WithInferenceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyInferenceID, id)
}

// InferenceID extracts the async inference ID from context.
func InferenceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyInferenceID).(string)
	return v, ok && v != ""
}
