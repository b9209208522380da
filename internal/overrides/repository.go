package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// Repository provides PostgreSQL backed persistence for overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a new override row.
func (r *Repository) Insert(ctx context.Context, scope *tenancy.Scope, override Override) (Override, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return Override{}, err
	}
	var conditions []byte
	if override.Conditions != nil {
		conditions, err = json.Marshal(override.Conditions)
		if err != nil {
			return Override{}, err
		}
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO permission_overrides
			(id, business_id, user_id, permission_id, is_allowed, conditions, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		override.ID, businessID, override.UserID, override.PermissionID,
		override.IsAllowed, conditions, override.GrantedBy, override.GrantedAt, override.ExpiresAt,
	)
	if err != nil {
		return Override{}, err
	}
	override.BusinessID = businessID
	return override, nil
}

// LatestActive returns the most recently granted override for (user,
// permission) that is neither revoked nor expired at now. Expired rows are
// filtered here, never deleted.
func (r *Repository) LatestActive(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionID int64, now time.Time) (Override, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return Override{}, err
	}
	var override Override
	var conditions []byte
	err = r.pool.QueryRow(ctx, `
		SELECT o.id, o.business_id, o.user_id, o.permission_id, p.name, o.is_allowed,
		       o.conditions, o.granted_by, o.granted_at, o.expires_at, o.revoked_at
		FROM permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE o.business_id = $1 AND o.user_id = $2 AND o.permission_id = $3
		  AND o.revoked_at IS NULL
		  AND (o.expires_at IS NULL OR o.expires_at > $4)
		ORDER BY o.granted_at DESC
		LIMIT 1`,
		businessID, userID, permissionID, now,
	).Scan(&override.ID, &override.BusinessID, &override.UserID, &override.PermissionID,
		&override.PermissionName, &override.IsAllowed, &conditions, &override.GrantedBy,
		&override.GrantedAt, &override.ExpiresAt, &override.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Override{}, shared.ErrNotFound
		}
		return Override{}, err
	}
	if len(conditions) > 0 {
		var c Conditions
		if err := json.Unmarshal(conditions, &c); err != nil {
			return Override{}, err
		}
		if !c.Empty() {
			override.Conditions = &c
		}
	}
	return override, nil
}

// Revoke stamps every live override row for (user, permission) as revoked.
// Rows stay in place so the grant history survives.
func (r *Repository) Revoke(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionID int64, now time.Time) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE permission_overrides
		SET revoked_at = $4
		WHERE business_id = $1 AND user_id = $2 AND permission_id = $3 AND revoked_at IS NULL`,
		businessID, userID, permissionID, now,
	)
	return err
}
