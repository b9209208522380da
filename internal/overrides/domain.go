// Package overrides implements per-user permission overrides: explicit grants
// or denials that sit on top of role-derived capability, optionally limited by
// conditions and an expiry.
package overrides

import (
	"time"

	"github.com/google/uuid"
)

// Conditions is the closed set of predicates an override may carry. A
// condition whose counterpart is missing from the resource context is
// unsatisfied; an empty condition set applies unconditionally.
type Conditions struct {
	MaxAmount         *float64 `json:"max_amount,omitempty"`
	AllowedCategories []string `json:"allowed_categories,omitempty"`
}

// Empty reports whether no predicate is set.
func (c Conditions) Empty() bool {
	return c.MaxAmount == nil && len(c.AllowedCategories) == 0
}

// SatisfiedBy evaluates the predicates against a caller-supplied resource
// context. Evaluation is total and fails closed.
func (c Conditions) SatisfiedBy(rc ResourceContext) bool {
	if c.MaxAmount != nil {
		if rc.Amount == nil || *rc.Amount > *c.MaxAmount {
			return false
		}
	}
	if len(c.AllowedCategories) > 0 {
		if rc.Category == "" {
			return false
		}
		found := false
		for _, cat := range c.AllowedCategories {
			if cat == rc.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ResourceContext carries the resource attributes business logic supplies at
// decision time.
type ResourceContext struct {
	Amount   *float64 `json:"amount,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Override is one grant or denial of a permission for one user. Rows are
// append-only; supersession and revocation leave history in place for audit.
type Override struct {
	ID             uuid.UUID
	BusinessID     uuid.UUID
	UserID         uuid.UUID
	PermissionID   int64
	PermissionName string
	IsAllowed      bool
	Conditions     *Conditions
	GrantedBy      uuid.UUID
	GrantedAt      time.Time
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
}

// ActiveAt reports whether the override still speaks at the given instant. An
// expired or revoked override reads the same as no override at all.
func (o Override) ActiveAt(now time.Time) bool {
	if o.RevokedAt != nil && !o.RevokedAt.After(now) {
		return false
	}
	if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
		return false
	}
	return true
}
