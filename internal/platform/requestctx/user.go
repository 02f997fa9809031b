// Package requestctx carries the verified caller identity from the token
// middleware to the scoring and realtime layers.
package requestctx

import "context"

type userIDContextKey struct{}

// WithUserID stores the verified user identifier in context. Anonymous
// requests never call this; an absent value reads back as the empty string
// and the scoring layer treats the caller as a viewer.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the verified user identifier, or "" when the
// request carried no token.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDContextKey{}).(string)
	return value
}
