package auth

import (
	"context"
)

type contextKey struct{}

// WithUser attaches the caller identity to the request context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the caller identity, or the anonymous user when
// the request carried none.
func UserFromContext(ctx context.Context) User {
	if user, ok := ctx.Value(contextKey{}).(User); ok {
		return user
	}
	return User{}
}
