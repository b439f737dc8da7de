package auth

import "context"

type userContextKey struct{}

// ContextWithUser stores the authenticated user in the context. The gate is
// the only writer; downstream handlers read and never mutate.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the authenticated user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*User)
	return u, ok
}
