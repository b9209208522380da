package roles

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/platform/db"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// CreateRole inserts a role and its initial permission links in one
// transaction, so a failed link write never leaves a role behind with a
// partial permission set.
func (r *Repository) CreateRole(ctx context.Context, scope *tenancy.Scope, name, description string, isSystem bool, permissionIDs []int64) (Role, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return Role{}, err
	}
	var role Role
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO roles (business_id, name, description, is_system)
			VALUES ($1, $2, $3, $4)
			RETURNING id, business_id, name, description, is_system, created_at, updated_at`,
			businessID, name, description, isSystem,
		).Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			_, err = tx.Exec(ctx, `
				INSERT INTO role_permissions (business_id, role_id, permission_id)
				SELECT $1, $2, p.id
				FROM permissions p
				WHERE p.id = $3 AND (p.is_system OR p.business_id = $1)
				ON CONFLICT (role_id, permission_id) DO NOTHING`,
				businessID, role.ID, permID,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, shared.ErrDuplicateRole
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by id within the scoped business. An id that exists
// under another business reads as not found and is logged as a security event.
func (r *Repository) GetRole(ctx context.Context, scope *tenancy.Scope, id int64) (Role, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return Role{}, err
	}
	var role Role
	err = r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, description, is_system, created_at, updated_at
		FROM roles WHERE id = $1 AND business_id = $2`,
		id, businessID,
	).Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.reportForeignRole(ctx, businessID, id)
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByName fetches a role by its tenant-unique name.
func (r *Repository) GetRoleByName(ctx context.Context, scope *tenancy.Scope, name string) (Role, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return Role{}, err
	}
	var role Role
	err = r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, description, is_system, created_at, updated_at
		FROM roles WHERE business_id = $1 AND lower(name) = lower($2)`,
		businessID, name,
	).Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// AttachPermission links a permission to a role. Re-attaching is a no-op.
func (r *Repository) AttachPermission(ctx context.Context, scope *tenancy.Scope, roleID, permissionID int64) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO role_permissions (business_id, role_id, permission_id)
		SELECT $1, r.id, p.id
		FROM roles r, permissions p
		WHERE r.id = $2 AND r.business_id = $1
		  AND p.id = $3 AND (p.is_system OR p.business_id = $1)
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		businessID, roleID, permissionID,
	)
	return err
}

// DetachPermission unlinks a permission from a role. Detaching an absent link
// is a no-op.
func (r *Repository) DetachPermission(ctx context.Context, scope *tenancy.Scope, roleID, permissionID int64) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		DELETE FROM role_permissions
		WHERE business_id = $1 AND role_id = $2 AND permission_id = $3`,
		businessID, roleID, permissionID,
	)
	return err
}

// RolePermissionNames lists the permission names linked to a role.
func (r *Repository) RolePermissionNames(ctx context.Context, scope *tenancy.Scope, roleID int64) ([]string, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.business_id = $1 AND rp.role_id = $2
		ORDER BY p.name`,
		businessID, roleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNames(rows)
}

// AssignRole upserts a user's single active role in the business.
func (r *Repository) AssignRole(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, roleID int64) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO role_assignments (business_id, user_id, role_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, user_id)
		DO UPDATE SET role_id = EXCLUDED.role_id, assigned_at = NOW()`,
		businessID, userID, roleID,
	)
	return err
}

// RemoveAssignment drops a user's role binding.
func (r *Repository) RemoveAssignment(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		DELETE FROM role_assignments WHERE business_id = $1 AND user_id = $2`,
		businessID, userID,
	)
	return err
}

// UserPermissionNames resolves the role-derived permission names for a user.
func (r *Repository) UserPermissionNames(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM role_assignments ra
		JOIN role_permissions rp ON rp.role_id = ra.role_id AND rp.business_id = ra.business_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ra.business_id = $1 AND ra.user_id = $2
		ORDER BY p.name`,
		businessID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNames(rows)
}

func scanNames(rows pgx.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Repository) reportForeignRole(ctx context.Context, businessID uuid.UUID, id int64) {
	if r.logger == nil {
		return
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, id).Scan(&exists); err != nil || !exists {
		return
	}
	r.logger.Warn("cross-tenant role lookup",
		slog.Int64("role_id", id),
		slog.String("business_id", businessID.String()),
	)
}
