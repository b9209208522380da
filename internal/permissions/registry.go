package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// RepositoryPort defines data access for the permission catalog.
type RepositoryPort interface {
	Resolve(ctx context.Context, scope *tenancy.Scope, name string) (Permission, error)
	ListByResource(ctx context.Context, scope *tenancy.Scope, resource string) ([]Permission, error)
}

// Registry exposes the permission catalog. Read-only after seeding.
type Registry struct {
	repo RepositoryPort
}

// NewRegistry builds a Registry instance.
func NewRegistry(repo RepositoryPort) *Registry {
	return &Registry{repo: repo}
}

// Resolve looks up a permission by name within the tenant's visible scope:
// system permissions plus the tenant's own custom ones.
func (r *Registry) Resolve(ctx context.Context, scope *tenancy.Scope, name string) (Permission, error) {
	name = Normalize(name)
	if _, _, err := Split(name); err != nil {
		return Permission{}, fmt.Errorf("%w: %q", shared.ErrUnknownPermission, name)
	}
	perm, err := r.repo.Resolve(ctx, scope, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Permission{}, fmt.Errorf("%w: %q", shared.ErrUnknownPermission, name)
		}
		return Permission{}, err
	}
	return perm, nil
}

// ListByResource returns the permissions for a resource type in creation order.
func (r *Registry) ListByResource(ctx context.Context, scope *tenancy.Scope, resource string) ([]Permission, error) {
	return r.repo.ListByResource(ctx, scope, Normalize(resource))
}
