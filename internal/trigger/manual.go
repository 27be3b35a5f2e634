package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/mq"
	"github.com/shaiso/Cronwheel/internal/repo"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// JobLookup ищет задачу по ID.
type JobLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobSchedule, error)
}

// Dispatcher принимает срабатывание на отправку. Реализуется Pool.
type Dispatcher interface {
	Trigger(ctx context.Context, req domain.TriggerRequest) error
}

// ManualListener принимает запросы на ручной запуск из очереди triggers.manual
// и передаёт их в пул с причиной MANUAL.
//
// Ручной запуск не трогает расписание задачи и работает для
// задач в любом статусе.
type ManualListener struct {
	lookup   JobLookup
	dispatch Dispatcher
	logger   *slog.Logger
	now      func() time.Time

	consumer *mq.Consumer
}

// NewManualListener создаёт ManualListener. conn может быть nil —
// тогда Start недоступен, а Handle используется напрямую.
func NewManualListener(conn *mq.Connection, lookup JobLookup, dispatch Dispatcher, logger *slog.Logger) *ManualListener {
	if logger == nil {
		logger = slog.Default()
	}

	l := &ManualListener{
		lookup:   lookup,
		dispatch: dispatch,
		logger:   telemetry.WithComponent(logger, "manual_listener"),
		now:      time.Now,
	}
	if conn != nil {
		l.consumer = mq.NewConsumer(conn, logger, mq.ConsumerConfig{
			Queue:    mq.QueueTriggersManual,
			Handler:  l.Handle,
			Prefetch: 10,
		})
	}
	return l
}

// Start потребляет очередь до отмены ctx или Stop. Блокирующий.
func (l *ManualListener) Start(ctx context.Context) error {
	if l.consumer == nil {
		return errors.New("manual listener has no connection")
	}
	return l.consumer.Start(ctx)
}

// Stop останавливает потребление.
func (l *ManualListener) Stop() {
	if l.consumer != nil {
		l.consumer.Stop()
	}
}

// Handle обрабатывает один запрос на ручной запуск.
func (l *ManualListener) Handle(ctx context.Context, d *mq.Delivery) error {
	if d.Message.Type != mq.MessageTypeManualTrigger {
		return fmt.Errorf("unexpected message type %q: %w", d.Message.Type, mq.ErrReject)
	}

	payload, err := mq.ParsePayload[mq.ManualTriggerPayload](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: %w", mq.ErrReject, err)
	}
	if payload.JobID == uuid.Nil {
		return fmt.Errorf("job_id is required: %w", mq.ErrReject)
	}

	job, err := l.lookup.GetByID(ctx, payload.JobID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("job %s: %w", payload.JobID, mq.ErrReject)
	}
	if err != nil {
		return fmt.Errorf("lookup job %s: %w", payload.JobID, err)
	}

	req := domain.TriggerRequest{
		JobID:       job.ID,
		Cause:       domain.TriggerCauseManual,
		ScheduledAt: l.now().UTC().Truncate(time.Second),
		Params:      payload.Params,
	}
	if err := l.dispatch.Trigger(ctx, req); err != nil {
		return fmt.Errorf("trigger job %s: %w", job.ID, err)
	}

	telemetry.TriggersTotal.WithLabelValues(string(domain.TriggerCauseManual)).Inc()
	l.logger.Info("manual trigger accepted", "job_id", job.ID, "job_name", job.Name)
	return nil
}
