package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// DefaultRoleSets returns the permission names seeded onto the system roles of
// a new business. Owner holds the full system catalog.
func DefaultRoleSets() map[string][]string {
	owner := make([]string, 0, len(permissions.SystemCatalog()))
	for _, entry := range permissions.SystemCatalog() {
		owner = append(owner, entry.Name())
	}
	return map[string][]string{
		RoleOwner: owner,
		RoleManager: {
			"business:read",
			"user:read", "user:create", "user:update",
			"role:read",
			"customer:read", "customer:create", "customer:update",
			"job:read", "job:create", "job:update", "job:delete", "job:assign",
			"invoice:read", "invoice:create", "invoice:update", "invoice:send",
			"payment:read", "payment:create",
		},
		RoleStaff: {
			"customer:read",
			"job:read", "job:update",
			"invoice:read",
		},
	}
}

// Provision seeds the three system roles for a freshly created business and
// assigns the owner role to the founding user. The staff set is screened for
// sensitive permissions and the full set ordering is validated before any
// write happens.
func (s *Service) Provision(ctx context.Context, scope *tenancy.Scope, ownerUserID uuid.UUID) error {
	return s.ProvisionWithSets(ctx, scope, ownerUserID, DefaultRoleSets())
}

// ProvisionWithSets is Provision with caller-supplied role sets, used by
// deployments that trim the defaults.
func (s *Service) ProvisionWithSets(ctx context.Context, scope *tenancy.Scope, ownerUserID uuid.UUID, sets map[string][]string) error {
	for _, name := range sets[RoleStaff] {
		if SensitiveForStaff(permissions.Normalize(name)) {
			return fmt.Errorf("%w: %q", ErrSensitiveStaffPermission, name)
		}
	}
	if err := ValidateHierarchy(sets[RoleOwner], sets[RoleManager], sets[RoleStaff]); err != nil {
		return err
	}

	descriptions := map[string]string{
		RoleOwner:   "Full control over the business",
		RoleManager: "Day-to-day operations and billing",
		RoleStaff:   "Assigned work only",
	}
	for _, roleName := range []string{RoleOwner, RoleManager, RoleStaff} {
		ids := make([]int64, 0, len(sets[roleName]))
		for _, permName := range sets[roleName] {
			perm, err := s.registry.Resolve(ctx, scope, permName)
			if err != nil {
				return err
			}
			ids = append(ids, perm.ID)
		}
		if _, err := s.repo.CreateRole(ctx, scope, roleName, descriptions[roleName], true, ids); err != nil {
			return err
		}
	}

	ownerRole, err := s.repo.GetRoleByName(ctx, scope, RoleOwner)
	if err != nil {
		return err
	}
	return s.repo.AssignRole(ctx, scope, ownerUserID, ownerRole.ID)
}
