// Package tenancy makes tenant scoping explicit. Every data access in the
// authorization core is parameterized by a Scope value; there is no ambient
// "current tenant" state anywhere in the process.
package tenancy

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/shared"
)

// Scope pins a unit of work to exactly one business. A Scope is created once
// per logical request and released when the scoped function returns; a
// released scope refuses further use instead of silently leaking into
// another request.
type Scope struct {
	businessID uuid.UUID
	released   atomic.Bool
}

// NewScope builds a live scope for the given business.
func NewScope(businessID uuid.UUID) *Scope {
	return &Scope{businessID: businessID}
}

// BusinessID returns the scoped business id, or ErrScopeReleased once the
// scope has been released.
func (s *Scope) BusinessID() (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, shared.ErrNoScope
	}
	if s.released.Load() {
		return uuid.Nil, shared.ErrScopeReleased
	}
	return s.businessID, nil
}

// RunScoped establishes a scope for the duration of fn and guarantees it
// cannot be referenced afterwards.
func RunScoped(ctx context.Context, businessID uuid.UUID, fn func(context.Context, *Scope) error) error {
	scope := NewScope(businessID)
	defer scope.released.Store(true)
	return fn(ContextWithScope(ctx, scope), scope)
}

type scopeContextKey struct{}

// ContextWithScope stores the scope in context.
func ContextWithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope from context, if any.
func ScopeFromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(*Scope)
	return scope
}
