package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/scheduler"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

const (
	defaultNextCount = 5
	maxNextCount     = 100
)

// CreateJob создаёт новую задачу.
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	switch req.MisfireStrategy {
	case "", string(domain.MisfireDoNothing), string(domain.MisfireFireOnceNow):
	default:
		BadRequest(w, "unknown misfire_strategy")
		return
	}

	job := req.ToDomain()
	if HandleError(w, h.logger, scheduler.ValidateJob(job), "") {
		return
	}

	if HandleError(w, h.logger, h.jobs.Create(r.Context(), job), "") {
		return
	}

	h.logger.Info("job created",
		"job_id", job.ID,
		"name", job.Name,
		"schedule_type", job.ScheduleType,
		"status", job.TriggerStatus,
	)
	Created(w, JobFromDomain(job))
}

// GetJob возвращает задачу по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job))
}

// StartJob переводит задачу в RUNNING.
// POST /api/v1/jobs/{id}/start
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.TriggerStatusRunning)
}

// StopJob переводит задачу в STOPPED.
// POST /api/v1/jobs/{id}/stop
func (h *Handler) StopJob(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.TriggerStatusStopped)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status domain.TriggerStatus) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	// Запускать можно только задачу с корректным расписанием
	if status == domain.TriggerStatusRunning {
		if HandleError(w, h.logger, scheduler.ValidateJob(job), "") {
			return
		}
	}

	if HandleError(w, h.logger, h.jobs.SetStatus(r.Context(), id, status), "job not found") {
		return
	}

	job, err = h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	h.logger.Info("job status changed", "job_id", id, "status", status)
	Success(w, JobFromDomain(job))
}

// TriggerJob запускает задачу вручную вне расписания.
// POST /api/v1/jobs/{id}/trigger
func (h *Handler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	// Тело необязательно
	var req TriggerJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	if _, err := h.jobs.GetByID(r.Context(), id); HandleError(w, h.logger, err, "job not found") {
		return
	}

	trig := domain.TriggerRequest{
		JobID:       id,
		Cause:       domain.TriggerCauseManual,
		ScheduledAt: h.now().UTC().Truncate(time.Second),
		Params:      req.Params,
	}
	if HandleError(w, h.logger, h.dispatch.Trigger(r.Context(), trig), "") {
		return
	}

	telemetry.TriggersTotal.WithLabelValues(string(domain.TriggerCauseManual)).Inc()
	h.logger.Info("manual trigger accepted", "job_id", id, "scheduled_at", trig.ScheduledAt)

	Accepted(w, TriggerJobResponse{
		JobID:          id,
		ScheduledAt:    trig.ScheduledAt,
		IdempotencyKey: trig.IdempotencyKey(),
	})
}

// NextFires возвращает ближайшие срабатывания задачи.
// GET /api/v1/jobs/{id}/next?count=...
func (h *Handler) NextFires(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	count := defaultNextCount
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil || n <= 0 || n > maxNextCount {
			BadRequest(w, "count must be between 1 and 100")
			return
		}
		count = n
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	fires := make([]time.Time, 0, count)
	from := h.now().UTC()
	for range count {
		next, err := scheduler.NextFireAfter(job, from)
		if HandleError(w, h.logger, err, "") {
			return
		}
		if next.IsZero() {
			break
		}
		fires = append(fires, next.UTC())
		from = next
	}

	Success(w, NextFiresResponse{JobID: id, Fires: fires})
}

// parseJobID читает {id} из пути. При ошибке отвечает 400.
func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}
