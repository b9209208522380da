package roles

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/shared"
)

// Role represents a named permission bundle within one business.
type Role struct {
	ID          int64
	BusinessID  uuid.UUID
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment binds a user to their single active role within one business.
type Assignment struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
	RoleID     int64
	AssignedAt time.Time
}

// System role names created for every business at provisioning.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// ErrSensitiveStaffPermission indicates a provisioning attempt to seed the
// default staff role with a capability reserved for higher roles.
var ErrSensitiveStaffPermission = errors.New("roles: sensitive permission on staff role")

// SensitiveForStaff reports whether a permission may never be seeded onto the
// default staff role. Admins can still grant equivalent capability later
// through a per-user override.
func SensitiveForStaff(name string) bool {
	resource, _, err := permissions.Split(name)
	if err != nil {
		return false
	}
	if resource == permissions.MetaResource {
		return true
	}
	return name == permissions.PermBusinessDelete || name == permissions.PermUserDelete
}

// ValidateHierarchy enforces the strict superset ordering among the system
// roles: every staff permission must be held by manager, every manager
// permission by owner.
func ValidateHierarchy(owner, manager, staff []string) error {
	ownerSet := toSet(owner)
	managerSet := toSet(manager)
	for name := range managerSet {
		if !ownerSet[name] {
			return shared.ErrRoleHierarchyViolation
		}
	}
	for name := range toSet(staff) {
		if !managerSet[name] {
			return shared.ErrRoleHierarchyViolation
		}
	}
	return nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[permissions.Normalize(name)] = true
	}
	return set
}
