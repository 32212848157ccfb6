package tools

import "context"

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	threadIDKey contextKey = "thread_id"
)

// WithUserID adds the user ID to the context. Tools that store
// per-user data (memories) read it back with [UserIDFromContext].
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext extracts the user ID from the context.
// Returns "anonymous" if not set.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return "anonymous"
}

// WithThreadID adds the conversation thread ID to the context.
func WithThreadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, threadIDKey, id)
}

// ThreadIDFromContext extracts the thread ID from the context, or "".
func ThreadIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(threadIDKey).(string)
	return id
}
