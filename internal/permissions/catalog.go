package permissions

import "fmt"

// CatalogEntry declares one system permission seeded for every deployment.
type CatalogEntry struct {
	Resource string
	Action   string
	Category string
}

// Action names reused across resources.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// MetaResource is the one resource type without a create action: permissions
// themselves are granted and revoked, never created by tenants.
const MetaResource = "permission"

// Sensitive permission names that must never land on the default staff role
// at provisioning time.
const (
	PermBusinessDelete   = "business:delete"
	PermUserDelete       = "user:delete"
	PermPermissionRead   = "permission:read"
	PermPermissionGrant  = "permission:grant"
	PermPermissionRevoke = "permission:revoke"
)

// SystemCatalog lists the built-in permissions, in seed order.
func SystemCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Resource: "business", Action: ActionRead, Category: "platform"},
		{Resource: "business", Action: ActionCreate, Category: "platform"},
		{Resource: "business", Action: ActionUpdate, Category: "platform"},
		{Resource: "business", Action: ActionDelete, Category: "platform"},

		{Resource: "user", Action: ActionRead, Category: "platform"},
		{Resource: "user", Action: ActionCreate, Category: "platform"},
		{Resource: "user", Action: ActionUpdate, Category: "platform"},
		{Resource: "user", Action: ActionDelete, Category: "platform"},

		{Resource: "role", Action: ActionRead, Category: "platform"},
		{Resource: "role", Action: ActionCreate, Category: "platform"},
		{Resource: "role", Action: ActionUpdate, Category: "platform"},
		{Resource: "role", Action: ActionDelete, Category: "platform"},

		{Resource: MetaResource, Action: ActionRead, Category: "platform"},
		{Resource: MetaResource, Action: "grant", Category: "platform"},
		{Resource: MetaResource, Action: "revoke", Category: "platform"},

		{Resource: "customer", Action: ActionRead, Category: "operations"},
		{Resource: "customer", Action: ActionCreate, Category: "operations"},
		{Resource: "customer", Action: ActionUpdate, Category: "operations"},
		{Resource: "customer", Action: ActionDelete, Category: "operations"},

		{Resource: "job", Action: ActionRead, Category: "operations"},
		{Resource: "job", Action: ActionCreate, Category: "operations"},
		{Resource: "job", Action: ActionUpdate, Category: "operations"},
		{Resource: "job", Action: ActionDelete, Category: "operations"},
		{Resource: "job", Action: "assign", Category: "operations"},

		{Resource: "invoice", Action: ActionRead, Category: "billing"},
		{Resource: "invoice", Action: ActionCreate, Category: "billing"},
		{Resource: "invoice", Action: ActionUpdate, Category: "billing"},
		{Resource: "invoice", Action: ActionDelete, Category: "billing"},
		{Resource: "invoice", Action: "send", Category: "billing"},

		{Resource: "payment", Action: ActionRead, Category: "billing"},
		{Resource: "payment", Action: ActionCreate, Category: "billing"},
	}
}

// Name renders the catalog entry's permission name.
func (e CatalogEntry) Name() string {
	return e.Resource + ":" + e.Action
}

// ValidateCatalog checks that every resource type exposes at least a read
// action and that every resource except the meta-resource exposes create.
func ValidateCatalog(entries []CatalogEntry) error {
	actions := make(map[string]map[string]bool)
	for _, e := range entries {
		if actions[e.Resource] == nil {
			actions[e.Resource] = make(map[string]bool)
		}
		actions[e.Resource][e.Action] = true
	}
	for resource, set := range actions {
		if !set[ActionRead] {
			return fmt.Errorf("permissions: resource %q lacks a read action", resource)
		}
		if resource != MetaResource && !set[ActionCreate] {
			return fmt.Errorf("permissions: resource %q lacks a create action", resource)
		}
	}
	return nil
}
