package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// JobStore — операции над задачами, нужные API. Реализуется repo.JobRepo.
type JobStore interface {
	Create(ctx context.Context, job *domain.JobSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobSchedule, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.TriggerStatus) error
}

// Dispatcher принимает ручные срабатывания. Реализуется trigger.Pool.
type Dispatcher interface {
	Trigger(ctx context.Context, req domain.TriggerRequest) error
}

// Handler — обработчик API управления задачами.
type Handler struct {
	jobs     JobStore
	dispatch Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs     JobStore
	Dispatch Dispatcher
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:     cfg.Jobs,
		dispatch: cfg.Dispatch,
		logger:   telemetry.WithComponent(logger, "api"),
		now:      time.Now,
	}
}
