package shared

import "errors"

var (
	// ErrNotFound indicates resource not found within the current tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrUnknownPermission indicates a permission name absent from the catalog.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrDuplicateRole indicates a role name already used within the tenant.
	ErrDuplicateRole = errors.New("duplicate role")
	// ErrPermissionNotFound indicates a permission referenced during role mutation does not resolve.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrRoleHierarchyViolation indicates the owner/manager/staff superset ordering would break.
	ErrRoleHierarchyViolation = errors.New("role hierarchy violation")
	// ErrCrossTenant indicates an id that resolves in a different tenant. Never
	// returned to API callers; surfaces there as ErrNotFound.
	ErrCrossTenant = errors.New("cross-tenant access attempt")
	// ErrScopeReleased indicates a tenant scope used after its scoped function returned.
	ErrScopeReleased = errors.New("tenant scope released")
	// ErrNoScope indicates a data access attempted without an established tenant scope.
	ErrNoScope = errors.New("tenant scope not established")
)
