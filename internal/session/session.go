// Package session carries the authenticated user through a request context.
package session

import "context"

type contextKey string

const ctxUserKey contextKey = "user_id"

// WithUserID returns a context whose active user is userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserKey, userID)
}

// UserID returns the active user, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxUserKey).(string)
	return id, ok && id != ""
}
