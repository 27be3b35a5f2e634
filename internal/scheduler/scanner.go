package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// ScanResult — итог одного сканирования.
type ScanResult struct {
	Scanned   int // задач прочитано
	Fired     int // срабатываний передано сразу
	Ringed    int // срабатываний отложено в кольцо
	Misfired  int // пропущенных срабатываний обнаружено
	Exhausted int // задач остановлено (расписание исчерпано)
	Failed    int // задач с ошибкой вычисления NextFireAt
	Skipped   int // задач, изменённых вне сканирования
}

// scanPlan — действия, накопленные внутри транзакции.
// Применяются только после успешного commit.
type scanPlan struct {
	result ScanResult
	fires  []domain.TriggerRequest
	ring   []RingEntry
}

// planMark — состояние плана перед обработкой одной задачи.
type planMark struct {
	result ScanResult
	fires  int
	ring   int
}

func (p *scanPlan) mark() planMark {
	return planMark{result: p.result, fires: len(p.fires), ring: len(p.ring)}
}

// undo отбрасывает всё, что запланировано после m.
func (p *scanPlan) undo(m planMark) {
	p.result = m.result
	p.fires = p.fires[:m.fires]
	p.ring = p.ring[:m.ring]
}

func (p *scanPlan) fire(jobID uuid.UUID, cause domain.TriggerCause, scheduledAt time.Time) {
	p.fires = append(p.fires, domain.TriggerRequest{
		JobID:       jobID,
		Cause:       cause,
		ScheduledAt: scheduledAt,
	})
}

func (p *scanPlan) place(jobID uuid.UUID, fireAt time.Time) {
	p.ring = append(p.ring, RingEntry{JobID: jobID, FireAt: fireAt})
}

// scanLoop — цикл scanner.
//
// Если сканирование заняло меньше секунды, спит до следующей границы
// секунды; иначе сразу начинает следующее.
func (s *Scheduler) scanLoop(ctx context.Context) {
	if !sleepToNextSecond(ctx, s.scanStop) {
		return
	}

	for !stopped(s.scanStop) {
		start := time.Now()

		if _, err := s.ScanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("schedule scan failed", "error", err)
		}

		if time.Since(start) < time.Second {
			if !sleepToNextSecond(ctx, s.scanStop) {
				return
			}
		}
	}
}

// ScanOnce выполняет одно сканирование.
//
// 1. Захватывает ScanLock и открывает транзакцию
// 2. Читает RUNNING задачи с NextFireAt <= now + lookahead
// 3. Для каждой: misfire, немедленное срабатывание или кольцо
// 4. Сохраняет новые NextFireAt/LastFireAt/TriggerStatus и делает commit
// 5. Только после commit передаёт срабатывания в Trigger и кладёт записи в кольцо
//
// Ошибка блокировки или хранилища отменяет всё сканирование: ничего не
// сохраняется и ничего не срабатывает.
func (s *Scheduler) ScanOnce(ctx context.Context) (ScanResult, error) {
	start := time.Now()
	defer func() {
		telemetry.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	scanCtx, cancel := context.WithTimeout(ctx, s.scanTimeout)
	defer cancel()

	var plan scanPlan
	err := s.lock.WithLock(scanCtx, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context) error {
			plan = scanPlan{}

			now := s.now()
			jobs, err := s.store.QueryDueOrSoonDue(ctx, now.Add(s.lookahead), s.pageSize)
			if err != nil {
				return fmt.Errorf("query due jobs: %w", err)
			}
			plan.result.Scanned = len(jobs)

			for i := range jobs {
				job := &jobs[i]
				m := plan.mark()
				if !s.planJob(job, now, &plan) {
					continue
				}
				err := s.store.Persist(ctx, job)
				if errors.Is(err, ErrJobChanged) {
					// Оператор изменил задачу после чтения — его версия главнее
					plan.undo(m)
					plan.result.Skipped++
					s.logger.Info("job changed during scan, skipped", "job_id", job.ID, "job_name", job.Name)
					continue
				}
				if err != nil {
					return fmt.Errorf("persist job %s: %w", job.ID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		telemetry.ScansTotal.WithLabelValues("error").Inc()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ScanResult{}, fmt.Errorf("scan timed out after %s: %w", s.scanTimeout, err)
		}
		return ScanResult{}, err
	}

	telemetry.JobsScanned.Add(float64(plan.result.Scanned))
	if plan.result.Scanned == 0 {
		telemetry.ScansTotal.WithLabelValues("empty").Inc()
		return plan.result, nil
	}
	telemetry.ScansTotal.WithLabelValues("ok").Inc()

	s.apply(ctx, &plan)

	s.logger.Debug("schedule scan completed",
		"scanned", plan.result.Scanned,
		"fired", plan.result.Fired,
		"ringed", plan.result.Ringed,
		"misfired", plan.result.Misfired,
		"exhausted", plan.result.Exhausted,
		"failed", plan.result.Failed,
		"skipped", plan.result.Skipped,
	)

	return plan.result, nil
}

// planJob классифицирует одну задачу и обновляет её расписание.
// Возвращает false, если задачу сохранять не нужно.
//
// Новое NextFireAt вычисляется до того, как срабатывание попадает в план:
// задача с некорректным выражением не срабатывает и остаётся
// с прежним NextFireAt до исправления.
func (s *Scheduler) planJob(job *domain.JobSchedule, now time.Time, plan *scanPlan) bool {
	horizon := now.Add(s.lookahead)

	switch {
	case job.NeedsInit():
		// NextFireAt ещё не вычислен — инициализируем без срабатывания
		next, ok := s.nextFire(job, now, plan)
		if !ok {
			return false
		}
		s.advance(job, next, plan)
		return true

	case now.After(job.NextFireAt.Add(s.lookahead)):
		// Пропущено: окно срабатывания давно прошло
		next, ok := s.nextFire(job, now, plan)
		if !ok {
			return false
		}

		action := DecideMisfire(job.MisfireStrategy)
		plan.result.Misfired++
		telemetry.MisfiresTotal.WithLabelValues(action.String()).Inc()
		s.logger.Warn("job misfired",
			"job_id", job.ID,
			"job_name", job.Name,
			"scheduled_at", job.NextFireAt,
			"late_by", now.Sub(job.NextFireAt),
			"action", action,
		)

		if action == MisfireFireNow {
			plan.fire(job.ID, domain.TriggerCauseMisfire, job.NextFireAt)
		}
		s.advance(job, next, plan)
		return true

	case !now.Before(job.NextFireAt):
		// Пора: NextFireAt <= now <= NextFireAt + lookahead
		next, ok := s.nextFire(job, now, plan)
		if !ok {
			return false
		}
		plan.fire(job.ID, domain.TriggerCauseCron, job.NextFireAt)

		if next.IsZero() || !next.Before(horizon) {
			s.advance(job, next, plan)
			return true
		}

		// Следующее срабатывание тоже попадает в окно — сразу в кольцо,
		// а в хранилище пишем срабатывание после него.
		after, ok := s.nextFire(job, next, plan)
		if !ok {
			// Кольцо не трогаем: next подхватит следующее сканирование
			s.advance(job, next, plan)
			return true
		}
		job.Advance(next)
		plan.place(job.ID, next)
		s.advance(job, after, plan)
		return true

	default:
		// Скоро: now < NextFireAt <= now + lookahead
		next, ok := s.nextFire(job, job.NextFireAt, plan)
		if !ok {
			return false
		}
		plan.place(job.ID, job.NextFireAt)
		s.advance(job, next, plan)
		return true
	}
}

// nextFire вычисляет следующее срабатывание после from.
// Ошибка вычисления логируется и учитывается в плане.
func (s *Scheduler) nextFire(job *domain.JobSchedule, from time.Time, plan *scanPlan) (time.Time, bool) {
	next, err := NextFireAfter(job, from)
	if err != nil {
		plan.result.Failed++
		telemetry.CalcErrorsTotal.Inc()
		s.logger.Error("failed to calculate next fire time, job left unchanged",
			"job_id", job.ID,
			"job_name", job.Name,
			"schedule_type", job.ScheduleType,
			"schedule_expr", job.ScheduleExpr,
			"error", err,
		)
		return time.Time{}, false
	}
	return next, true
}

// advance сдвигает расписание задачи; нулевое next останавливает задачу.
func (s *Scheduler) advance(job *domain.JobSchedule, next time.Time, plan *scanPlan) {
	job.Advance(next)
	if next.IsZero() {
		plan.result.Exhausted++
		telemetry.SchedulesExhausted.Inc()
		s.logger.Info("schedule exhausted, job stopped",
			"job_id", job.ID,
			"job_name", job.Name,
		)
	}
}

// apply передаёт накопленные срабатывания и заполняет кольцо.
func (s *Scheduler) apply(ctx context.Context, plan *scanPlan) {
	for _, req := range plan.fires {
		if s.handOff(ctx, req) {
			plan.result.Fired++
		}
	}

	for _, e := range plan.ring {
		if s.ring.Push(e.FireAt, e.JobID) {
			plan.result.Ringed++
		}
	}
	telemetry.RingEntries.Set(float64(s.ring.Len()))
}
