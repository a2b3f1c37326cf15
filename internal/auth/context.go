package auth

import (
	"context"

	"r53gate/internal/model"
)

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity attaches the authenticated user to ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated user, if any.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}
