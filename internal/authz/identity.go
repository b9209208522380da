package authz

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the request-scoped authentication result this core consumes.
// Verifying it is the upstream gateway's job; here it only selects the tenant
// scope and the acting user.
type Identity struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context. The boolean is
// false when no authenticated identity is present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
