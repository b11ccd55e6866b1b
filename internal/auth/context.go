// Package auth carries the caller of a cloud request through its context.
package auth

import "context"

type contextKey struct{}

// Caller identifies who a cloud request acts for.
type Caller struct {
	UserID string
	Remote string
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok
}

// UserID returns the caller's user id, or "" outside an authenticated
// request.
func UserID(ctx context.Context) string {
	c, _ := FromContext(ctx)
	return c.UserID
}
