package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cronwheel/internal/domain"
)

// CreateJobRequest — запрос на создание задачи.
type CreateJobRequest struct {
	Name            string `json:"name"`
	ScheduleType    string `json:"schedule_type"`
	ScheduleExpr    string `json:"schedule_expr"`
	Timezone        string `json:"timezone,omitempty"`
	MisfireStrategy string `json:"misfire_strategy,omitempty"`

	// Start — создать задачу сразу в статусе RUNNING.
	Start bool `json:"start,omitempty"`
}

// ToDomain собирает задачу из запроса.
func (r CreateJobRequest) ToDomain() *domain.JobSchedule {
	timezone := r.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	job := &domain.JobSchedule{
		ID:              uuid.New(),
		Name:            r.Name,
		ScheduleType:    domain.ParseScheduleType(r.ScheduleType),
		ScheduleExpr:    r.ScheduleExpr,
		Timezone:        timezone,
		MisfireStrategy: domain.ParseMisfireStrategy(r.MisfireStrategy),
		TriggerStatus:   domain.TriggerStatusStopped,
	}
	if r.Start {
		job.TriggerStatus = domain.TriggerStatusRunning
	}
	return job
}

// JobResponse — ответ с задачей.
type JobResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	ScheduleType    string     `json:"schedule_type"`
	ScheduleExpr    string     `json:"schedule_expr,omitempty"`
	Timezone        string     `json:"timezone"`
	MisfireStrategy string     `json:"misfire_strategy"`
	TriggerStatus   string     `json:"trigger_status"`
	NextFireAt      *time.Time `json:"next_fire_at,omitempty"`
	LastFireAt      *time.Time `json:"last_fire_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// JobFromDomain конвертирует domain.JobSchedule в JobResponse.
func JobFromDomain(j *domain.JobSchedule) JobResponse {
	return JobResponse{
		ID:              j.ID,
		Name:            j.Name,
		ScheduleType:    string(j.ScheduleType),
		ScheduleExpr:    j.ScheduleExpr,
		Timezone:        j.Timezone,
		MisfireStrategy: string(j.MisfireStrategy),
		TriggerStatus:   j.TriggerStatus.String(),
		NextFireAt:      optionalTime(j.NextFireAt),
		LastFireAt:      optionalTime(j.LastFireAt),
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

// TriggerJobRequest — тело запроса на ручной запуск (опционально).
type TriggerJobRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// TriggerJobResponse — ответ на принятый ручной запуск.
type TriggerJobResponse struct {
	JobID          uuid.UUID `json:"job_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// NextFiresResponse — ближайшие срабатывания задачи.
type NextFiresResponse struct {
	JobID uuid.UUID   `json:"job_id"`
	Fires []time.Time `json:"fires"`
}

// optionalTime возвращает nil для нулевого времени.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
