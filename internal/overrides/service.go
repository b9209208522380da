package overrides

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/audit"
	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// RepositoryPort defines data access for overrides.
type RepositoryPort interface {
	Insert(ctx context.Context, scope *tenancy.Scope, override Override) (Override, error)
	LatestActive(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionID int64, now time.Time) (Override, error)
	Revoke(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionID int64, now time.Time) error
}

// Service manages the override lifecycle.
type Service struct {
	repo     RepositoryPort
	registry *permissions.Registry
	recorder audit.Recorder
	now      func() time.Time
}

// NewService builds a Service instance. recorder may be nil.
func NewService(repo RepositoryPort, registry *permissions.Registry, recorder audit.Recorder) *Service {
	return &Service{repo: repo, registry: registry, recorder: recorder, now: time.Now}
}

// Grant records a new override for (user, permission). Any prior active
// override is superseded for future evaluation; its row stays for audit.
func (s *Service) Grant(ctx context.Context, scope *tenancy.Scope, actor, userID uuid.UUID, permissionName string, isAllowed bool, conditions *Conditions, expiresAt *time.Time) (Override, error) {
	perm, err := s.registry.Resolve(ctx, scope, permissionName)
	if err != nil {
		return Override{}, err
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return Override{}, fmt.Errorf("overrides: expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	if conditions != nil && conditions.Empty() {
		conditions = nil
	}
	businessID, err := scope.BusinessID()
	if err != nil {
		return Override{}, err
	}
	override := Override{
		ID:             uuid.New(),
		BusinessID:     businessID,
		UserID:         userID,
		PermissionID:   perm.ID,
		PermissionName: perm.Name,
		IsAllowed:      isAllowed,
		Conditions:     conditions,
		GrantedBy:      actor,
		GrantedAt:      s.now().UTC(),
		ExpiresAt:      expiresAt,
	}
	stored, err := s.repo.Insert(ctx, scope, override)
	if err != nil {
		return Override{}, err
	}
	s.record(ctx, scope, actor, userID, perm.Name, audit.KindOverrideGrant, outcomeOf(isAllowed), "")
	return stored, nil
}

// ActiveOverride returns the authoritative override for (user, permission) at
// the given instant: the most recently granted one that is neither revoked
// nor expired. The boolean reports whether one exists.
func (s *Service) ActiveOverride(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID, permissionName string, now time.Time) (Override, bool, error) {
	perm, err := s.registry.Resolve(ctx, scope, permissionName)
	if err != nil {
		return Override{}, false, err
	}
	override, err := s.repo.LatestActive(ctx, scope, userID, perm.ID, now)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Override{}, false, nil
		}
		return Override{}, false, err
	}
	return override, true, nil
}

// Revoke deactivates the current override for (user, permission) immediately,
// regardless of its expiry.
func (s *Service) Revoke(ctx context.Context, scope *tenancy.Scope, actor, userID uuid.UUID, permissionName string) error {
	perm, err := s.registry.Resolve(ctx, scope, permissionName)
	if err != nil {
		return err
	}
	if err := s.repo.Revoke(ctx, scope, userID, perm.ID, s.now().UTC()); err != nil {
		return err
	}
	s.record(ctx, scope, actor, userID, perm.Name, audit.KindOverrideRevoke, "revoked", "")
	return nil
}

func (s *Service) record(ctx context.Context, scope *tenancy.Scope, actor, target uuid.UUID, permission, kind, outcome, reason string) {
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

func outcomeOf(isAllowed bool) string {
	if isAllowed {
		return "granted"
	}
	return "denied"
}
