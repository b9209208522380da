// Package authz combines role-derived capability with per-user overrides into
// a single fail-closed access decision.
package authz

// Source identifies which layer produced a decision.
type Source string

// Decision sources, in precedence order.
const (
	SourceOverride    Source = "override"
	SourceRole        Source = "role"
	SourceDefaultDeny Source = "default-deny"
)

// Decision is the outcome of one permission check.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Source     Source `json:"source"`
	Permission string `json:"permission"`
	Reason     string `json:"reason,omitempty"`
}

func allow(source Source, permission, reason string) Decision {
	return Decision{Allowed: true, Source: source, Permission: permission, Reason: reason}
}

func deny(source Source, permission, reason string) Decision {
	return Decision{Allowed: false, Source: source, Permission: permission, Reason: reason}
}
