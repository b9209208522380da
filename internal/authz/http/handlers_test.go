package authzhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opsledger/opsledger/internal/audit"
	"github.com/opsledger/opsledger/internal/authz"
	"github.com/opsledger/opsledger/internal/overrides"
	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/roles"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

type memoryPermissionsRepo struct {
	byName map[string]permissions.Permission
}

func newMemoryPermissionsRepo() *memoryPermissionsRepo {
	repo := &memoryPermissionsRepo{byName: make(map[string]permissions.Permission)}
	for i, entry := range permissions.SystemCatalog() {
		name := entry.Name()
		repo.byName[name] = permissions.Permission{ID: int64(i + 1), Name: name, IsSystem: true}
	}
	return repo
}

func (r *memoryPermissionsRepo) Resolve(_ context.Context, _ *tenancy.Scope, name string) (permissions.Permission, error) {
	perm, ok := r.byName[name]
	if !ok {
		return permissions.Permission{}, shared.ErrNotFound
	}
	return perm, nil
}

func (r *memoryPermissionsRepo) ListByResource(_ context.Context, _ *tenancy.Scope, resource string) ([]permissions.Permission, error) {
	var out []permissions.Permission
	for _, perm := range r.byName {
		if strings.HasPrefix(perm.Name, resource+":") {
			out = append(out, perm)
		}
	}
	return out, nil
}

func (r *memoryPermissionsRepo) nameOf(id int64) string {
	for name, perm := range r.byName {
		if perm.ID == id {
			return name
		}
	}
	return ""
}

// memoryRolesRepo keys names and assignments by business id so requests
// carrying a foreign tenant header see none of the fixture's rows.
type memoryRolesRepo struct {
	perms       *memoryPermissionsRepo
	roles       map[int64]roles.Role
	byName      map[string]int64
	links       map[int64]map[int64]bool
	assignments map[string]int64
	nextID      int64
}

func newMemoryRolesRepo(perms *memoryPermissionsRepo) *memoryRolesRepo {
	return &memoryRolesRepo{
		perms:       perms,
		roles:       make(map[int64]roles.Role),
		byName:      make(map[string]int64),
		links:       make(map[int64]map[int64]bool),
		assignments: make(map[string]int64),
	}
}

func (r *memoryRolesRepo) nameKey(businessID uuid.UUID, name string) string {
	return businessID.String() + "|" + strings.ToLower(name)
}

func (r *memoryRolesRepo) roleInScope(scope *tenancy.Scope, roleID int64) (roles.Role, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return roles.Role{}, err
	}
	role, ok := r.roles[roleID]
	if !ok || role.BusinessID != businessID {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRolesRepo) CreateRole(_ context.Context, scope *tenancy.Scope, name, description string, isSystem bool, permissionIDs []int64) (roles.Role, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return roles.Role{}, err
	}
	key := r.nameKey(businessID, name)
	if _, exists := r.byName[key]; exists {
		return roles.Role{}, shared.ErrDuplicateRole
	}
	r.nextID++
	role := roles.Role{ID: r.nextID, BusinessID: businessID, Name: name, Description: description, IsSystem: isSystem}
	r.roles[role.ID] = role
	r.byName[key] = role.ID
	links := make(map[int64]bool, len(permissionIDs))
	for _, permID := range permissionIDs {
		links[permID] = true
	}
	r.links[role.ID] = links
	return role, nil
}

func (r *memoryRolesRepo) GetRole(_ context.Context, scope *tenancy.Scope, id int64) (roles.Role, error) {
	return r.roleInScope(scope, id)
}

func (r *memoryRolesRepo) GetRoleByName(_ context.Context, scope *tenancy.Scope, name string) (roles.Role, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return roles.Role{}, err
	}
	id, ok := r.byName[r.nameKey(businessID, name)]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return r.roles[id], nil
}

func (r *memoryRolesRepo) AttachPermission(_ context.Context, scope *tenancy.Scope, roleID, permissionID int64) error {
	if _, err := r.roleInScope(scope, roleID); err != nil {
		return err
	}
	r.links[roleID][permissionID] = true
	return nil
}

func (r *memoryRolesRepo) DetachPermission(_ context.Context, scope *tenancy.Scope, roleID, permissionID int64) error {
	if _, err := r.roleInScope(scope, roleID); err != nil {
		return err
	}
	delete(r.links[roleID], permissionID)
	return nil
}

func (r *memoryRolesRepo) RolePermissionNames(_ context.Context, scope *tenancy.Scope, roleID int64) ([]string, error) {
	if _, err := r.roleInScope(scope, roleID); err != nil {
		return nil, err
	}
	var names []string
	for permID := range r.links[roleID] {
		names = append(names, r.perms.nameOf(permID))
	}
	return names, nil
}

func (r *memoryRolesRepo) AssignRole(_ context.Context, scope *tenancy.Scope, userID uuid.UUID, roleID int64) error {
	if _, err := r.roleInScope(scope, roleID); err != nil {
		return err
	}
	businessID, _ := scope.BusinessID()
	r.assignments[businessID.String()+"|"+userID.String()] = roleID
	return nil
}

func (r *memoryRolesRepo) RemoveAssignment(_ context.Context, scope *tenancy.Scope, userID uuid.UUID) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	delete(r.assignments, businessID.String()+"|"+userID.String())
	return nil
}

func (r *memoryRolesRepo) UserPermissionNames(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return nil, err
	}
	roleID, ok := r.assignments[businessID.String()+"|"+userID.String()]
	if !ok {
		return nil, nil
	}
	return r.RolePermissionNames(ctx, scope, roleID)
}

type memoryOverridesRepo struct {
	rows []overrides.Override
}

func (r *memoryOverridesRepo) Insert(_ context.Context, scope *tenancy.Scope, override overrides.Override) (overrides.Override, error) {
	if _, err := scope.BusinessID(); err != nil {
		return overrides.Override{}, err
	}
	r.rows = append(r.rows, override)
	return override, nil
}

func (r *memoryOverridesRepo) LatestActive(_ context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionID int64, now time.Time) (overrides.Override, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return overrides.Override{}, err
	}
	var latest *overrides.Override
	for i := range r.rows {
		row := r.rows[i]
		if row.BusinessID != businessID || row.UserID != userID || row.PermissionID != permissionID || !row.ActiveAt(now) {
			continue
		}
		if latest == nil || row.GrantedAt.After(latest.GrantedAt) {
			latest = &r.rows[i]
		}
	}
	if latest == nil {
		return overrides.Override{}, shared.ErrNotFound
	}
	return *latest, nil
}

func (r *memoryOverridesRepo) Revoke(_ context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionID int64, now time.Time) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	for i := range r.rows {
		row := &r.rows[i]
		if row.BusinessID == businessID && row.UserID == userID && row.PermissionID == permissionID && row.RevokedAt == nil {
			at := now
			row.RevokedAt = &at
		}
	}
	return nil
}

type memoryAuditRepo struct{}

func (memoryAuditRepo) Timeline(context.Context, *tenancy.Scope, audit.TimelineFilters, int, int) ([]audit.Entry, error) {
	return nil, nil
}

type fixture struct {
	server     *httptest.Server
	rolesRepo  *memoryRolesRepo
	rolesSvc   *roles.Service
	businessID uuid.UUID
	ownerID    uuid.UUID
	staffID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	permsRepo := newMemoryPermissionsRepo()
	registry := permissions.NewRegistry(permsRepo)
	rolesRepo := newMemoryRolesRepo(permsRepo)
	rolesSvc := roles.NewService(rolesRepo, registry, audit.NopRecorder{}, nil, nil)
	overridesSvc := overrides.NewService(&memoryOverridesRepo{}, registry, audit.NopRecorder{})
	auditSvc := audit.NewService(memoryAuditRepo{})
	checker := authz.NewChecker(registry, rolesSvc, overridesSvc, nil, nil, nil)

	f := &fixture{
		rolesRepo:  rolesRepo,
		rolesSvc:   rolesSvc,
		businessID: uuid.New(),
		ownerID:    uuid.New(),
		staffID:    uuid.New(),
	}

	err := tenancy.RunScoped(context.Background(), f.businessID, func(ctx context.Context, scope *tenancy.Scope) error {
		if err := rolesSvc.Provision(ctx, scope, f.ownerID); err != nil {
			return err
		}
		staffRole, err := rolesSvc.GetRoleByName(ctx, scope, roles.RoleStaff)
		if err != nil {
			return err
		}
		return rolesSvc.AssignRole(ctx, scope, f.ownerID, f.staffID, staffRole.ID)
	})
	require.NoError(t, err)

	handler := NewHandler(nil, checker, rolesSvc, overridesSvc, auditSvc)
	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(Authenticate(nil))
		handler.MountRoutes(r)
	})
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, asUser uuid.UUID, body any) *http.Response {
	t.Helper()
	return f.doTenant(t, method, path, f.businessID, asUser, body)
}

func (f *fixture) doTenant(t *testing.T, method, path string, businessID, asUser uuid.UUID, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderBusiness, businessID.String())
	req.Header.Set(HeaderUser, asUser.String())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeDecision(t *testing.T, resp *http.Response) authz.Decision {
	t.Helper()
	var decision authz.Decision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	return decision
}

func TestAuthenticateRejectsMissingIdentity(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/permissions", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckEndpointRoleGrant(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{"permission": "job:read"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := decodeDecision(t, resp)
	require.True(t, decision.Allowed)
	require.Equal(t, authz.SourceRole, decision.Source)
}

func TestCheckEndpointDefaultDeny(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{"permission": "job:delete"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := decodeDecision(t, resp)
	require.False(t, decision.Allowed)
	require.Equal(t, authz.SourceDefaultDeny, decision.Source)
}

func TestCheckEndpointUnknownPermission(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{"permission": "rocket:launch"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRouteGatedByPermission(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"name": "Dispatcher", "permissions": []string{"job:read", "job:assign"}}

	denied := f.do(t, http.MethodPost, "/roles", f.staffID, body)
	require.Equal(t, http.StatusForbidden, denied.StatusCode)

	created := f.do(t, http.MethodPost, "/roles", f.ownerID, body)
	require.Equal(t, http.StatusCreated, created.StatusCode)
}

func TestCheckScopedByBusinessHeader(t *testing.T) {
	f := newFixture(t)

	granted := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{"permission": "job:read"})
	require.True(t, decodeDecision(t, granted).Allowed)

	// The same user under a foreign business header holds no role there,
	// so the capability they have in their own tenant evaluates to deny.
	foreign := f.doTenant(t, http.MethodPost, "/check", uuid.New(), f.staffID, map[string]any{"permission": "job:read"})
	require.Equal(t, http.StatusOK, foreign.StatusCode)
	decision := decodeDecision(t, foreign)
	require.False(t, decision.Allowed)
	require.Equal(t, authz.SourceDefaultDeny, decision.Source)
}

func TestAdminRouteDeniedUnderForeignTenant(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"name": "Dispatcher", "permissions": []string{"job:read"}}

	resp := f.doTenant(t, http.MethodPost, "/roles", uuid.New(), f.ownerID, body)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConditionalOverrideFlow(t *testing.T) {
	f := newFixture(t)

	grant := f.do(t, http.MethodPost, "/overrides", f.ownerID, map[string]any{
		"user_id":    f.staffID.String(),
		"permission": "invoice:create",
		"is_allowed": true,
		"conditions": map[string]any{"max_amount": 1000},
	})
	require.Equal(t, http.StatusCreated, grant.StatusCode)

	within := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{
		"permission": "invoice:create",
		"context":    map[string]any{"amount": 500},
	})
	require.Equal(t, http.StatusOK, within.StatusCode)
	decision := decodeDecision(t, within)
	require.True(t, decision.Allowed)
	require.Equal(t, authz.SourceOverride, decision.Source)

	above := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{
		"permission": "invoice:create",
		"context":    map[string]any{"amount": 5000},
	})
	require.Equal(t, http.StatusOK, above.StatusCode)
	decision = decodeDecision(t, above)
	require.False(t, decision.Allowed)
	require.Equal(t, authz.SourceDefaultDeny, decision.Source)
}

func TestRevokeOverrideEndpoint(t *testing.T) {
	f := newFixture(t)

	grant := f.do(t, http.MethodPost, "/overrides", f.ownerID, map[string]any{
		"user_id":    f.staffID.String(),
		"permission": "job:delete",
		"is_allowed": true,
	})
	require.Equal(t, http.StatusCreated, grant.StatusCode)

	allowed := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{"permission": "job:delete"})
	require.True(t, decodeDecision(t, allowed).Allowed)

	revoked := f.do(t, http.MethodDelete, "/users/"+f.staffID.String()+"/overrides/job:delete", f.ownerID, nil)
	require.Equal(t, http.StatusNoContent, revoked.StatusCode)

	denied := f.do(t, http.MethodPost, "/check", f.staffID, map[string]any{"permission": "job:delete"})
	require.False(t, decodeDecision(t, denied).Allowed)
}

func TestListPermissionsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/permissions", f.staffID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.ElementsMatch(t, []string{"customer:read", "job:read", "job:update", "invoice:read"}, payload.Permissions)
}
