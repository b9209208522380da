// Package authzhttp exposes the authorization core over HTTP: the check
// endpoint called by business logic, the admin surface for roles and
// overrides, and the audit timeline.
package authzhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/authz"
	"github.com/opsledger/opsledger/internal/platform/httpx"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// Identity headers populated by the upstream authentication gateway.
const (
	HeaderBusiness = "X-Auth-Business"
	HeaderUser     = "X-Auth-User"
)

// Authenticate extracts the authenticated identity and establishes the tenant
// scope for exactly the duration of the request.
func Authenticate(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			businessID, err := uuid.Parse(r.Header.Get(HeaderBusiness))
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing business identity")
				return
			}
			userID, err := uuid.Parse(r.Header.Get(HeaderUser))
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing user identity")
				return
			}
			ctx := authz.ContextWithIdentity(r.Context(), authz.Identity{BusinessID: businessID, UserID: userID})
			err = tenancy.RunScoped(ctx, businessID, func(ctx context.Context, _ *tenancy.Scope) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			if err != nil && logger != nil {
				logger.Error("scoped request", slog.Any("error", err))
			}
		})
	}
}

// RequirePermission gates a route behind a permission check for the current
// identity. Errors deny.
func RequirePermission(checker *authz.Checker, logger *slog.Logger, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authz.IdentityFromContext(r.Context())
			scope := tenancy.ScopeFromContext(r.Context())
			if !ok || scope == nil {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			decision, err := checker.Check(r.Context(), scope, identity.UserID, permission, resourceContextNone)
			if err != nil {
				if logger != nil {
					logger.Error("permission gate", slog.String("permission", permission), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			if !decision.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
