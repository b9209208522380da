package permissions

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// Repository provides PostgreSQL backed catalog access.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Resolve fetches a permission visible to the scoped tenant. A name that only
// exists as another tenant's custom permission reads as not found; the miss is
// recorded as a security event.
func (r *Repository) Resolve(ctx context.Context, scope *tenancy.Scope, name string) (Permission, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return Permission{}, err
	}
	var perm Permission
	err = r.pool.QueryRow(ctx, `
		SELECT id, name, resource, action, category, is_system, business_id, created_at
		FROM permissions
		WHERE name = $1 AND (is_system OR business_id = $2)`,
		name, businessID,
	).Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Category, &perm.IsSystem, &perm.BusinessID, &perm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.reportForeignHit(ctx, businessID, name)
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// ListByResource returns the tenant-visible permissions for one resource type,
// ordered by creation time.
func (r *Repository) ListByResource(ctx context.Context, scope *tenancy.Scope, resource string) ([]Permission, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, resource, action, category, is_system, business_id, created_at
		FROM permissions
		WHERE resource = $1 AND (is_system OR business_id = $2)
		ORDER BY created_at, id`,
		resource, businessID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Category, &perm.IsSystem, &perm.BusinessID, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (r *Repository) reportForeignHit(ctx context.Context, businessID any, name string) {
	if r.logger == nil {
		return
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE name = $1)`, name).Scan(&exists); err != nil || !exists {
		return
	}
	r.logger.Warn("cross-tenant permission lookup",
		slog.String("permission", name),
		slog.Any("business_id", businessID),
	)
}
