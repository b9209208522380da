package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/audit"
	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// RepositoryPort defines data access for roles, links and assignments.
type RepositoryPort interface {
	CreateRole(ctx context.Context, scope *tenancy.Scope, name, description string, isSystem bool, permissionIDs []int64) (Role, error)
	GetRole(ctx context.Context, scope *tenancy.Scope, id int64) (Role, error)
	GetRoleByName(ctx context.Context, scope *tenancy.Scope, name string) (Role, error)
	AttachPermission(ctx context.Context, scope *tenancy.Scope, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, scope *tenancy.Scope, roleID, permissionID int64) error
	RolePermissionNames(ctx context.Context, scope *tenancy.Scope, roleID int64) ([]string, error)
	AssignRole(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, roleID int64) error
	RemoveAssignment(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) error
	UserPermissionNames(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error)
}

// Invalidator drops cached permission sets after a role mutation so an admin
// sees their change on the next evaluation.
type Invalidator interface {
	Invalidate(ctx context.Context, scope *tenancy.Scope) error
}

// Service manages roles, role-permission links and user assignments.
type Service struct {
	repo     RepositoryPort
	registry *permissions.Registry
	recorder audit.Recorder
	cache    Invalidator
	logger   *slog.Logger
}

// NewService builds a Service instance. recorder and cache may be nil.
func NewService(repo RepositoryPort, registry *permissions.Registry, recorder audit.Recorder, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, registry: registry, recorder: recorder, cache: cache, logger: logger}
}

// CreateRole creates a custom role with an initial permission set.
func (s *Service) CreateRole(ctx context.Context, scope *tenancy.Scope, actor uuid.UUID, name, description string, permissionNames []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	resolved := make([]permissions.Permission, 0, len(permissionNames))
	for _, permName := range permissionNames {
		perm, err := s.registry.Resolve(ctx, scope, permName)
		if err != nil {
			if errors.Is(err, shared.ErrUnknownPermission) {
				return Role{}, fmt.Errorf("%w: %q", shared.ErrPermissionNotFound, permName)
			}
			return Role{}, err
		}
		resolved = append(resolved, perm)
	}
	ids := make([]int64, 0, len(resolved))
	for _, perm := range resolved {
		ids = append(ids, perm.ID)
	}
	role, err := s.repo.CreateRole(ctx, scope, name, strings.TrimSpace(description), false, ids)
	if err != nil {
		return Role{}, err
	}
	s.recordChange(ctx, scope, actor, uuid.Nil, "", audit.KindRoleChange, "created", "role "+name)
	s.invalidate(ctx, scope)
	return role, nil
}

// AttachPermission adds a permission to a role. Attaching an already linked
// permission is a no-op. System roles are re-validated against the
// owner/manager/staff superset ordering before the link is made.
func (s *Service) AttachPermission(ctx context.Context, scope *tenancy.Scope, actor uuid.UUID, roleID int64, permissionName string) error {
	return s.mutateLink(ctx, scope, actor, roleID, permissionName, true)
}

// DetachPermission removes a permission from a role. Detaching a permission
// that is not attached is a no-op, not an error.
func (s *Service) DetachPermission(ctx context.Context, scope *tenancy.Scope, actor uuid.UUID, roleID int64, permissionName string) error {
	return s.mutateLink(ctx, scope, actor, roleID, permissionName, false)
}

func (s *Service) mutateLink(ctx context.Context, scope *tenancy.Scope, actor uuid.UUID, roleID int64, permissionName string, attach bool) error {
	role, err := s.repo.GetRole(ctx, scope, roleID)
	if err != nil {
		return err
	}
	perm, err := s.registry.Resolve(ctx, scope, permissionName)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownPermission) {
			return fmt.Errorf("%w: %q", shared.ErrPermissionNotFound, permissionName)
		}
		return err
	}
	if role.IsSystem {
		if err := s.checkHierarchyAfter(ctx, scope, role.Name, perm.Name, attach); err != nil {
			return err
		}
	}
	verb := "attached"
	if attach {
		err = s.repo.AttachPermission(ctx, scope, role.ID, perm.ID)
	} else {
		verb = "detached"
		err = s.repo.DetachPermission(ctx, scope, role.ID, perm.ID)
	}
	if err != nil {
		return err
	}
	s.recordChange(ctx, scope, actor, uuid.Nil, perm.Name, audit.KindRoleChange, verb, "role "+role.Name)
	s.invalidate(ctx, scope)
	return nil
}

// AssignRole gives a user their single active role in the business, replacing
// any prior assignment.
func (s *Service) AssignRole(ctx context.Context, scope *tenancy.Scope, actor, userID uuid.UUID, roleID int64) error {
	role, err := s.repo.GetRole(ctx, scope, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, scope, userID, role.ID); err != nil {
		return err
	}
	s.recordChange(ctx, scope, actor, userID, "", audit.KindRoleChange, "assigned", "role "+role.Name)
	s.invalidate(ctx, scope)
	return nil
}

// RemoveAssignment drops a user's role binding, typically on deactivation.
func (s *Service) RemoveAssignment(ctx context.Context, scope *tenancy.Scope, actor, userID uuid.UUID) error {
	if err := s.repo.RemoveAssignment(ctx, scope, userID); err != nil {
		return err
	}
	s.recordChange(ctx, scope, actor, userID, "", audit.KindRoleChange, "unassigned", "")
	s.invalidate(ctx, scope)
	return nil
}

// PermissionsOf returns the role-derived permission names for a user. This is
// the RBAC half of every evaluation; a user without an assignment has none.
func (s *Service) PermissionsOf(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error) {
	return s.repo.UserPermissionNames(ctx, scope, userID)
}

// GetRoleByName resolves a role by its tenant-unique name.
func (s *Service) GetRoleByName(ctx context.Context, scope *tenancy.Scope, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, scope, strings.TrimSpace(name))
}

// checkHierarchyAfter validates the system-role superset ordering as it would
// look once the pending link change is applied.
func (s *Service) checkHierarchyAfter(ctx context.Context, scope *tenancy.Scope, roleName, permName string, attach bool) error {
	sets := make(map[string][]string, 3)
	for _, name := range []string{RoleOwner, RoleManager, RoleStaff} {
		role, err := s.repo.GetRoleByName(ctx, scope, name)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Tenant not fully provisioned; nothing to compare against.
				continue
			}
			return err
		}
		names, err := s.repo.RolePermissionNames(ctx, scope, role.ID)
		if err != nil {
			return err
		}
		sets[name] = names
	}
	sets[roleName] = applyChange(sets[roleName], permName, attach)
	return ValidateHierarchy(sets[RoleOwner], sets[RoleManager], sets[RoleStaff])
}

func applyChange(names []string, permName string, attach bool) []string {
	out := make([]string, 0, len(names)+1)
	for _, name := range names {
		if name == permName {
			continue
		}
		out = append(out, name)
	}
	if attach {
		out = append(out, permName)
	}
	return out
}

func (s *Service) recordChange(ctx context.Context, scope *tenancy.Scope, actor, target uuid.UUID, permission, kind, outcome, reason string) {
	if s.recorder == nil {
		return
	}
	businessID, err := scope.BusinessID()
	if err != nil {
		return
	}
	s.recorder.Record(ctx, audit.Entry{
		BusinessID:   businessID,
		ActorID:      actor,
		TargetUserID: target,
		Permission:   permission,
		Kind:         kind,
		Outcome:      outcome,
		Reason:       reason,
	})
}

func (s *Service) invalidate(ctx context.Context, scope *tenancy.Scope) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, scope); err != nil {
		s.logger.Warn("permission cache invalidation failed", slog.Any("error", err))
	}
}
