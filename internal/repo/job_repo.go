package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/scheduler"
)

// pgUniqueViolation — код ошибки нарушения уникальности.
const pgUniqueViolation = "23505"

const jobColumns = `
	id, name, schedule_type, schedule_expr, timezone, misfire_strategy,
	trigger_status, next_fire_at, last_fire_at, created_at, updated_at
`

// JobRepo — репозиторий расписаний задач.
//
// Все методы выполняются в транзакции из контекста, если она есть
// (её открывает PgScanLock), иначе напрямую через пул.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// db возвращает транзакцию из контекста или пул.
func (r *JobRepo) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

// InTx выполняет fn в транзакции.
//
// Если в ctx уже есть транзакция, fn присоединяется к ней,
// и фиксирует её владелец. Иначе открывается новая:
// commit при успехе fn, rollback при ошибке.
func (r *JobRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// QueryDueOrSoonDue возвращает RUNNING задачи с next_fire_at <= before
// или с ещё не вычисленным next_fire_at, в порядке срабатывания.
func (r *JobRepo) QueryDueOrSoonDue(ctx context.Context, before time.Time, limit int) ([]domain.JobSchedule, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_schedules
		WHERE trigger_status = $1
		  AND (next_fire_at IS NULL OR next_fire_at <= $2)
		ORDER BY next_fire_at ASC NULLS FIRST
		LIMIT $3
	`
	rows, err := r.db(ctx).Query(ctx, query, int(domain.TriggerStatusRunning), before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobSchedule
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// persistJobSQL — условное сохранение расписания.
// Строка пишется, только если она всё ещё RUNNING и updated_at не менялся
// с момента чтения; иначе её изменили вне ScanLock (SetStatus).
const persistJobSQL = `
	UPDATE job_schedules
	SET trigger_status = $2, next_fire_at = $3, last_fire_at = $4, updated_at = NOW()
	WHERE id = $1 AND trigger_status = 1 AND updated_at = $5
	RETURNING updated_at
`

// Persist сохраняет вычисленное состояние расписания.
// Если строку изменили после чтения, возвращает scheduler.ErrJobChanged.
func (r *JobRepo) Persist(ctx context.Context, job *domain.JobSchedule) error {
	var updatedAt time.Time
	err := r.db(ctx).QueryRow(ctx, persistJobSQL,
		job.ID,
		int(job.TriggerStatus),
		nullTime(job.NextFireAt),
		nullTime(job.LastFireAt),
		job.UpdatedAt,
	).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("persist job %s: %w", job.ID, scheduler.ErrJobChanged)
	}
	if err != nil {
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}

	job.UpdatedAt = updatedAt
	return nil
}

// Create создаёт новую задачу.
// Пустой ID генерируется, пустые даты заполняются текущим временем.
func (r *JobRepo) Create(ctx context.Context, job *domain.JobSchedule) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	if job.Timezone == "" {
		job.Timezone = "UTC"
	}

	query := `
		INSERT INTO job_schedules (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db(ctx).Exec(ctx, query,
		job.ID,
		job.Name,
		string(job.ScheduleType),
		nullString(job.ScheduleExpr),
		job.Timezone,
		string(job.MisfireStrategy),
		int(job.TriggerStatus),
		nullTime(job.NextFireAt),
		nullTime(job.LastFireAt),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: job %q", ErrAlreadyExists, job.Name)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает задачу по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobSchedule, error) {
	query := `SELECT ` + jobColumns + ` FROM job_schedules WHERE id = $1`

	job, err := scanJob(r.db(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// SetStatus запускает или останавливает задачу.
//
// При запуске next_fire_at сбрасывается: scanner вычислит его от текущего
// времени, не догоняя срабатывания, пропущенные в остановленном состоянии.
// Остановка обнуляет next_fire_at и last_fire_at.
func (r *JobRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.TriggerStatus) error {
	query := `
		UPDATE job_schedules
		SET trigger_status = $2, next_fire_at = NULL, updated_at = NOW(),
		    last_fire_at = CASE WHEN $2 = 0 THEN NULL ELSE last_fire_at END
		WHERE id = $1
	`
	result, err := r.db(ctx).Exec(ctx, query, id, int(status))
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// scanJob читает одну строку job_schedules.
// pgx.Rows тоже реализует pgx.Row, поэтому хелпер общий.
func scanJob(row pgx.Row) (*domain.JobSchedule, error) {
	var (
		j                      domain.JobSchedule
		scheduleType, misfire  string
		scheduleExpr           *string
		status                 int16
		nextFireAt, lastFireAt *time.Time
	)

	err := row.Scan(
		&j.ID,
		&j.Name,
		&scheduleType,
		&scheduleExpr,
		&j.Timezone,
		&misfire,
		&status,
		&nextFireAt,
		&lastFireAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.ScheduleType = domain.ParseScheduleType(scheduleType)
	j.MisfireStrategy = domain.ParseMisfireStrategy(misfire)
	j.TriggerStatus = domain.TriggerStatus(status)
	if scheduleExpr != nil {
		j.ScheduleExpr = *scheduleExpr
	}
	j.NextFireAt = timeOrZero(nextFireAt)
	j.LastFireAt = timeOrZero(lastFireAt)

	return &j, nil
}
