package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/opsledger/opsledger/internal/audit"
)

// AuditWriter persists audit entries; satisfied by audit.Repository.
type AuditWriter interface {
	Insert(ctx context.Context, entry audit.Entry) error
}

// NewAuditRecordHandler returns the handler for audit.TaskTypeRecord tasks.
// A malformed payload is dropped rather than retried; a failed insert is
// retried by asynq up to the task's MaxRetry.
func NewAuditRecordHandler(writer AuditWriter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var entry audit.Entry
		if err := json.Unmarshal(t.Payload(), &entry); err != nil {
			if logger != nil {
				logger.Error("audit task payload", slog.Any("error", err))
			}
			return asynq.SkipRetry
		}
		if err := writer.Insert(ctx, entry); err != nil {
			if logger != nil {
				logger.Warn("audit entry write, will retry",
					slog.String("kind", entry.Kind),
					slog.Any("error", err),
				)
			}
			return err
		}
		return nil
	}
}
