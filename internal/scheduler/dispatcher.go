package scheduler

import (
	"context"
	"time"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// dispatchLoop — цикл dispatcher.
// Просыпается на каждой границе секунды и забирает слоты кольца.
// Не обращается к хранилищу и не ждёт ScanLock.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	for sleepToNextSecond(ctx, s.dispatchStop) {
		s.DispatchTick(ctx, time.Now())
	}
}

// DispatchTick забирает из кольца всё, что должно сработать к моменту now,
// и передаёт в Trigger. Возвращает количество переданных срабатываний.
//
// Забираются слот текущей секунды и Lookback предыдущих слотов (поглощают
// задержку пробуждения). Слоты вне окон lookback и lookahead должны быть
// пустыми; если там что-то осталось, срабатывание опоздало — оно
// логируется и всё равно передаётся, иначе пролежало бы до следующего
// оборота кольца.
func (s *Scheduler) DispatchTick(ctx context.Context, now time.Time) int {
	nowSecond := SecondOf(now)

	var due []RingEntry
	for i := 0; i <= s.lookback; i++ {
		due = append(due, s.ring.Drain(nowSecond-i)...)
	}

	var late []RingEntry
	for d := s.lookback + 1; d < RingSlots-aheadSlots(s.lookahead); d++ {
		late = append(late, s.ring.Drain(nowSecond-d)...)
	}

	if len(late) > 0 {
		telemetry.RingLateTotal.Add(float64(len(late)))
		for _, e := range late {
			s.logger.Warn("ring entry missed its second, firing late",
				"job_id", e.JobID,
				"scheduled_at", e.FireAt,
				"late_by", now.Sub(e.FireAt),
			)
		}
		due = append(due, late...)
	}

	if len(due) == 0 {
		return 0
	}

	fired := 0
	for _, e := range due {
		req := domain.TriggerRequest{
			JobID:       e.JobID,
			Cause:       domain.TriggerCauseCron,
			ScheduledAt: e.FireAt,
		}
		if s.handOff(ctx, req) {
			fired++
		}
	}
	telemetry.RingEntries.Set(float64(s.ring.Len()))

	s.logger.Debug("time ring dispatched",
		"second", nowSecond,
		"due", len(due),
		"fired", fired,
	)

	return fired
}
