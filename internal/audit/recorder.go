package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqRecorder enqueues entries onto the audit queue. The actual write is
// performed by the worker with bounded retry; a failed enqueue is logged and
// the triggering decision stands.
type AsynqRecorder struct {
	client *asynq.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewAsynqRecorder builds a recorder on top of an asynq client.
func NewAsynqRecorder(client *asynq.Client, logger *slog.Logger) *AsynqRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqRecorder{client: client, logger: logger, now: time.Now}
}

// Record implements Recorder.
func (r *AsynqRecorder) Record(ctx context.Context, entry Entry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("audit entry marshal", slog.Any("error", err))
		return
	}
	task := asynq.NewTask(TaskTypeRecord, payload)
	_, err = r.client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Second),
	)
	if err != nil {
		r.logger.Error("audit entry enqueue",
			slog.String("kind", entry.Kind),
			slog.Any("error", err),
		)
	}
}
