package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/audit"
	"github.com/opsledger/opsledger/internal/overrides"
	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// RegistryPort resolves permission names against the catalog.
type RegistryPort interface {
	Resolve(ctx context.Context, scope *tenancy.Scope, name string) (permissions.Permission, error)
}

// RolesPort supplies the role-derived permission set.
type RolesPort interface {
	PermissionsOf(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error)
}

// OverridesPort supplies the authoritative override for a (user, permission)
// pair, if any is active.
type OverridesPort interface {
	ActiveOverride(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionName string, now time.Time) (overrides.Override, bool, error)
}

// DecisionObserver receives the outcome of every evaluation, for metrics.
type DecisionObserver interface {
	ObserveDecision(source string, allowed bool, elapsed time.Duration)
}

// Checker is the evaluation engine. It is safe for concurrent use; all tenant
// state travels in the Scope argument.
type Checker struct {
	registry  RegistryPort
	roles     RolesPort
	overrides OverridesPort
	recorder  audit.Recorder
	observer  DecisionObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewChecker builds a Checker. recorder and observer may be nil.
func NewChecker(registry RegistryPort, roles RolesPort, ovr OverridesPort, recorder audit.Recorder, observer DecisionObserver, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		registry:  registry,
		roles:     roles,
		overrides: ovr,
		recorder:  recorder,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
	}
}

// Check decides whether userID may perform the named permission given the
// resource context. Precedence: an active override grant with satisfied (or
// absent) conditions wins, then an active override denial, then role
// membership; everything else is the default denial. Any internal failure
// resolves to a denial, never an allow.
func (c *Checker) Check(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionName string, rc overrides.ResourceContext) (Decision, error) {
	started := c.now()
	decision, err := c.evaluate(ctx, scope, userID, permissionName, rc)
	c.observe(decision, c.now().Sub(started))
	c.recordDecision(ctx, scope, userID, decision)
	return decision, err
}

func (c *Checker) evaluate(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionName string, rc overrides.ResourceContext) (Decision, error) {
	perm, err := c.registry.Resolve(ctx, scope, permissionName)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownPermission) {
			// A caller referencing a name outside the catalog is a programming
			// error on the caller's side; make it visible.
			c.logger.Error("check against unknown permission",
				slog.String("permission", permissionName),
				slog.String("user_id", userID.String()),
			)
			return deny(SourceDefaultDeny, permissions.Normalize(permissionName), "unknown permission"), err
		}
		return deny(SourceDefaultDeny, permissions.Normalize(permissionName), "catalog unavailable"), err
	}

	override, found, err := c.overrides.ActiveOverride(ctx, scope, userID, perm.Name, c.now().UTC())
	if err != nil {
		return deny(SourceDefaultDeny, perm.Name, "override store unavailable"), err
	}
	overrideFellThrough := false
	if found {
		switch {
		case override.IsAllowed && (override.Conditions == nil || override.Conditions.SatisfiedBy(rc)):
			return allow(SourceOverride, perm.Name, "override grant"), nil
		case override.IsAllowed:
			// Conditional grant whose conditions did not match: the override
			// neither grants nor blocks; role evaluation proceeds.
			overrideFellThrough = true
		default:
			return deny(SourceOverride, perm.Name, "override denial"), nil
		}
	}

	granted, err := c.roles.PermissionsOf(ctx, scope, userID)
	if err != nil {
		return deny(SourceDefaultDeny, perm.Name, "role store unavailable"), err
	}
	for _, name := range granted {
		if name == perm.Name {
			return allow(SourceRole, perm.Name, "role grant"), nil
		}
	}
	reason := "no role or override grants this permission"
	if overrideFellThrough {
		reason = "override conditions unsatisfied; no role grant"
	}
	return deny(SourceDefaultDeny, perm.Name, reason), nil
}

// PermissionNames returns the role-derived permission names for a user, for
// UI capability rendering.
func (c *Checker) PermissionNames(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error) {
	return c.roles.PermissionsOf(ctx, scope, userID)
}

func (c *Checker) observe(decision Decision, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveDecision(string(decision.Source), decision.Allowed, elapsed)
}

func (c *Checker) recordDecision(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, decision Decision) {
	if c.recorder == nil {
		return
	}
	businessID, err := scope.BusinessID()
	if err != nil {
		return
	}
	outcome := "deny"
	if decision.Allowed {
		outcome = "allow"
	}
	c.recorder.Record(ctx, audit.Entry{
		BusinessID:   businessID,
		ActorID:      userID,
		TargetUserID: userID,
		Permission:   decision.Permission,
		Kind:         audit.KindDecision,
		Outcome:      outcome,
		Reason:       decision.Reason,
		Meta:         map[string]any{"source": string(decision.Source)},
	})
}
