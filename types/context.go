package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID contextKey = "trace_id"
	keyCallID  contextKey = "call_id"
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

// WithCallID tags the context with the ID of one Generate call.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, keyCallID, callID)
}

// CallID extracts the Generate call ID from context.
func CallID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCallID).(string)
	return v, ok && v != ""
}
