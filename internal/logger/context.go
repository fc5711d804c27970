package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// correlationIDKey is the context key for the event correlation ID.
var correlationIDKey = contextKey{}

// WithCorrelationID returns a new context with the given correlation ID stored.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID extracts the correlation ID from the context.
// Returns an empty string if none is set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
