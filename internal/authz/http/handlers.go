package authzhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/audit"
	"github.com/opsledger/opsledger/internal/authz"
	"github.com/opsledger/opsledger/internal/overrides"
	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/platform/httpx"
	"github.com/opsledger/opsledger/internal/roles"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

var resourceContextNone = overrides.ResourceContext{}

// Handler wires the authorization endpoints.
type Handler struct {
	logger    *slog.Logger
	checker   *authz.Checker
	roles     *roles.Service
	overrides *overrides.Service
	audit     *audit.Service
	validate  *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, checker *authz.Checker, rolesSvc *roles.Service, overridesSvc *overrides.Service, auditSvc *audit.Service) *Handler {
	return &Handler{
		logger:    logger,
		checker:   checker,
		roles:     rolesSvc,
		overrides: overridesSvc,
		audit:     auditSvc,
		validate:  validator.New(),
	}
}

// MountRoutes registers the authorization routes. Everything here sits behind
// Authenticate; admin routes carry their own permission gates.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Get("/permissions", h.listPermissions)

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(h.checker, h.logger, "role:create"))
		r.Post("/roles", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(h.checker, h.logger, "role:update"))
		r.Post("/roles/{roleID}/permissions", h.attachPermission)
		r.Delete("/roles/{roleID}/permissions/{permission}", h.detachPermission)
		r.Put("/users/{userID}/role", h.assignRole)
		r.Delete("/users/{userID}/role", h.removeAssignment)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(h.checker, h.logger, permissions.PermPermissionGrant))
		r.Post("/overrides", h.grantOverride)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(h.checker, h.logger, permissions.PermPermissionRevoke))
		r.Delete("/users/{userID}/overrides/{permission}", h.revokeOverride)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(h.checker, h.logger, permissions.PermPermissionRead))
		r.Get("/audit", h.auditTimeline)
	})
}

type checkRequest struct {
	UserID     string                    `json:"user_id"`
	Permission string                    `json:"permission" validate:"required"`
	Context    overrides.ResourceContext `json:"context"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	userID := identity.UserID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user_id")
			return
		}
		userID = parsed
	}
	decision, err := h.checker.Check(r.Context(), scope, userID, req.Permission, req.Context)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownPermission) {
			httpx.RespondError(w, err)
			return
		}
		// Fail closed: the caller still receives a denial decision.
		h.logger.Error("check", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	userID := identity.UserID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user_id")
			return
		}
		userID = parsed
	}
	names, err := h.checker.PermissionNames(r.Context(), scope, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": names})
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.roles.CreateRole(r.Context(), scope, identity.UserID, req.Name, req.Description, req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":   role.ID,
		"name": role.Name,
	})
}

type linkPermissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req linkPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.roles.AttachPermission(r.Context(), scope, identity.UserID, roleID, req.Permission); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPermission(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.roles.DetachPermission(r.Context(), scope, identity.UserID, roleID, chi.URLParam(r, "permission")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.roles.AssignRole(r.Context(), scope, identity.UserID, userID, req.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeAssignment(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.roles.RemoveAssignment(r.Context(), scope, identity.UserID, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantOverrideRequest struct {
	UserID     string                `json:"user_id" validate:"required,uuid"`
	Permission string                `json:"permission" validate:"required"`
	IsAllowed  *bool                 `json:"is_allowed" validate:"required"`
	Conditions *overrides.Conditions `json:"conditions"`
	ExpiresAt  *time.Time            `json:"expires_at"`
}

func (h *Handler) grantOverride(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req grantOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	userID, _ := uuid.Parse(req.UserID)
	override, err := h.overrides.Grant(r.Context(), scope, identity.UserID, userID, req.Permission, *req.IsAllowed, req.Conditions, req.ExpiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         override.ID,
		"permission": override.PermissionName,
		"is_allowed": override.IsAllowed,
		"expires_at": override.ExpiresAt,
	})
}

func (h *Handler) revokeOverride(w http.ResponseWriter, r *http.Request) {
	identity, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.overrides.Revoke(r.Context(), scope, identity.UserID, userID, chi.URLParam(r, "permission")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) auditTimeline(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	filters := audit.TimelineFilters{
		Kind:       r.URL.Query().Get("kind"),
		Permission: r.URL.Query().Get("permission"),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user_id")
			return
		}
		filters.TargetUserID = &parsed
	}
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filters.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.audit.Timeline(r.Context(), scope, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": result.Entries,
		"paging":  result.Paging,
	})
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (authz.Identity, *tenancy.Scope, bool) {
	identity, ok := authz.IdentityFromContext(r.Context())
	scope := tenancy.ScopeFromContext(r.Context())
	if !ok || scope == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return authz.Identity{}, nil, false
	}
	return identity, scope, true
}
