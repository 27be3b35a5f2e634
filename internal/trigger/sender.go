package trigger

import (
	"context"
	"log/slog"

	"github.com/shaiso/Cronwheel/internal/domain"
)

// Sender доставляет срабатывание исполнителю.
//
// Реализации: mq.Publisher (RabbitMQ) и LogSender (dry run).
type Sender interface {
	Send(ctx context.Context, req domain.TriggerRequest) error
}

// LogSender только пишет срабатывание в лог.
type LogSender struct {
	Logger *slog.Logger
}

// Send логирует срабатывание.
func (s LogSender) Send(ctx context.Context, req domain.TriggerRequest) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "trigger (dry run)",
		"job_id", req.JobID,
		"cause", req.Cause,
		"scheduled_at", req.ScheduledAt,
		"idempotency_key", req.IdempotencyKey(),
	)
	return nil
}
