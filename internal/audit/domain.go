// Package audit keeps the append-only trail of authorization decisions and
// administrative mutations. Entries are never updated or deleted here;
// retention is an operational concern outside this core.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindDecision       = "decision"
	KindOverrideGrant  = "override_grant"
	KindOverrideRevoke = "override_revoke"
	KindRoleChange     = "role_change"
)

// Asynq wiring shared between the recorder and the worker.
const (
	TaskTypeRecord = "audit:record"
	Queue          = "audit"
)

// Entry is one immutable audit record.
type Entry struct {
	ID           int64          `json:"id,omitempty"`
	BusinessID   uuid.UUID      `json:"business_id"`
	ActorID      uuid.UUID      `json:"actor_id"`
	TargetUserID uuid.UUID      `json:"target_user_id"`
	Permission   string         `json:"permission,omitempty"`
	Kind         string         `json:"kind"`
	Outcome      string         `json:"outcome"`
	Reason       string         `json:"reason,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	PrevHash     []byte         `json:"-"`
	Hash         []byte         `json:"-"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Recorder accepts entries without ever failing the caller: persistence
// happens out of band and write problems are logged, not surfaced.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// NopRecorder discards entries. Useful in tests and tools.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Entry) {}
