package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// Default configuration values.
const (
	defaultLookahead       = 5 * time.Second
	defaultLookback        = 1
	defaultPageSize        = 100
	defaultScanTimeout     = 30 * time.Second
	defaultScanStopTimeout = 2 * time.Second

	// preReadFactor — сколько срабатываний в секунду в среднем успевает
	// передать один воркер пула. pageSize = ёмкость пула × preReadFactor.
	preReadFactor = 20
)

// JobStore — хранилище расписаний задач.
//
// Запросы и сохранение выполняются внутри InTx: если ctx уже несёт
// транзакцию (например, открытую ScanLock), она переиспользуется.
//
// Persist сохраняет задачу, только если строка не менялась с момента
// чтения (сверяется UpdatedAt) и задача всё ещё RUNNING; иначе
// возвращает ErrJobChanged. При успехе UpdatedAt обновляется.
type JobStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	QueryDueOrSoonDue(ctx context.Context, before time.Time, limit int) ([]domain.JobSchedule, error)
	Persist(ctx context.Context, job *domain.JobSchedule) error
}

// ScanLock — межузловая блокировка одного цикла сканирования.
// WithLock блокируется до захвата (или отмены ctx).
type ScanLock interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// Trigger — передача срабатывания исполнителю (fire-and-forget).
// Реализация не должна блокироваться.
type Trigger interface {
	Trigger(ctx context.Context, req domain.TriggerRequest) error
}

// capacityReporter — Trigger, который знает свою ёмкость (количество воркеров).
type capacityReporter interface {
	Capacity() int
}

// Scheduler — распределённый планировщик срабатываний.
//
// Состоит из двух циклов, которые делят только TimeRing:
//   - scanner раз в секунду под ScanLock читает задачи с NextFireAt в пределах
//     lookahead, запускает просроченные, откладывает близкие в кольцо
//     и сохраняет новые NextFireAt;
//   - dispatcher раз в секунду забирает текущий и предыдущие слоты кольца
//     и передаёт срабатывания в Trigger.
type Scheduler struct {
	store   JobStore
	lock    ScanLock
	trigger Trigger
	ring    *TimeRing
	logger  *slog.Logger
	now     func() time.Time

	lookahead       time.Duration
	lookback        int
	pageSize        int
	scanTimeout     time.Duration
	scanStopTimeout time.Duration
	ringDrainGrace  time.Duration

	// Lifecycle
	mu             sync.Mutex
	started        bool
	stopOnce       sync.Once
	scanStop       chan struct{}
	scanDone       chan struct{}
	scanCancel     context.CancelFunc
	dispatchStop   chan struct{}
	dispatchDone   chan struct{}
	dispatchCancel context.CancelFunc
}

// Config — конфигурация Scheduler.
type Config struct {
	Store   JobStore
	Lock    ScanLock
	Trigger Trigger
	Logger  *slog.Logger

	// Lookahead — окно упреждающего чтения (default: 5s).
	Lookahead time.Duration

	// Lookback — сколько предыдущих слотов кольца забирает dispatcher (default: 1).
	Lookback int

	// PageSize — максимум задач за одно сканирование.
	// По умолчанию: ёмкость Trigger × 20, либо 100.
	PageSize int

	// ScanTimeout — таймаут одного цикла сканирования, включая ожидание блокировки (default: 30s).
	ScanTimeout time.Duration

	// ScanStopTimeout — сколько Stop ждёт завершения текущего сканирования (default: 2s).
	ScanStopTimeout time.Duration

	// RingDrainGrace — сколько Stop ждёт опустошения кольца (default: Lookahead + 3s).
	RingDrainGrace time.Duration

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Lock == nil || cfg.Trigger == nil {
		return nil, ErrMissingDependency
	}

	lookahead := cfg.Lookahead
	if lookahead <= 0 {
		lookahead = defaultLookahead
	}

	// Слоты lookback и lookahead не должны пересекаться
	maxLookback := RingSlots - aheadSlots(lookahead) - 1
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	if lookback > maxLookback {
		return nil, fmt.Errorf("lookback %d overlaps lookahead window (max %d)", lookback, maxLookback)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
		if cr, ok := cfg.Trigger.(capacityReporter); ok && cr.Capacity() > 0 {
			pageSize = cr.Capacity() * preReadFactor
		}
	}

	scanTimeout := cfg.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = defaultScanTimeout
	}

	scanStopTimeout := cfg.ScanStopTimeout
	if scanStopTimeout <= 0 {
		scanStopTimeout = defaultScanStopTimeout
	}

	ringDrainGrace := cfg.RingDrainGrace
	if ringDrainGrace <= 0 {
		ringDrainGrace = lookahead + 3*time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		store:           cfg.Store,
		lock:            cfg.Lock,
		trigger:         cfg.Trigger,
		ring:            NewTimeRing(),
		logger:          telemetry.WithComponent(logger, "scheduler"),
		now:             now,
		lookahead:       lookahead,
		lookback:        lookback,
		pageSize:        pageSize,
		scanTimeout:     scanTimeout,
		scanStopTimeout: scanStopTimeout,
		ringDrainGrace:  ringDrainGrace,
	}, nil
}

// Ring возвращает кольцо планировщика.
func (s *Scheduler) Ring() *TimeRing {
	return s.ring
}

// PageSize возвращает размер страницы сканирования.
func (s *Scheduler) PageSize() int {
	return s.pageSize
}

// Start запускает scanner и dispatcher.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.logger.Info("starting scheduler",
		"lookahead", s.lookahead,
		"lookback", s.lookback,
		"page_size", s.pageSize,
	)

	scanCtx, scanCancel := context.WithCancel(ctx)
	dispatchCtx, dispatchCancel := context.WithCancel(ctx)

	s.scanStop = make(chan struct{})
	s.scanDone = make(chan struct{})
	s.scanCancel = scanCancel
	s.dispatchStop = make(chan struct{})
	s.dispatchDone = make(chan struct{})
	s.dispatchCancel = dispatchCancel

	go func() {
		defer close(s.scanDone)
		s.scanLoop(scanCtx)
	}()

	go func() {
		defer close(s.dispatchDone)
		s.dispatchLoop(dispatchCtx)
	}()

	s.logger.Info("scheduler started")
	return nil
}

// Stop останавливает планировщик.
//
// 1. Scanner перестаёт начинать новые сканирования; текущему даётся
// ScanStopTimeout на завершение, после чего его контекст отменяется.
// 2. Dispatcher продолжает работать, пока кольцо не опустеет
// (но не дольше RingDrainGrace).
// 3. Dispatcher останавливается. Срабатывания, которые не успели
// передаться, не считаются выполненными.
//
// Повторный вызов безопасен.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	s.stopOnce.Do(func() {
		s.logger.Info("stopping scheduler...")

		close(s.scanStop)
		select {
		case <-s.scanDone:
		case <-time.After(s.scanStopTimeout):
			s.logger.Warn("scan still running, interrupting")
			s.scanCancel()
			<-s.scanDone
		}
		s.scanCancel()

		s.waitRingDrained()

		close(s.dispatchStop)
		s.dispatchCancel()
		<-s.dispatchDone

		s.logger.Info("scheduler stopped", "ring_entries_left", s.ring.Len())
	})
}

// waitRingDrained ждёт, пока dispatcher заберёт всё из кольца.
func (s *Scheduler) waitRingDrained() {
	if s.ring.IsEmpty() {
		return
	}

	s.logger.Info("waiting for time ring to drain", "entries", s.ring.Len(), "grace", s.ringDrainGrace)

	deadline := time.NewTimer(s.ringDrainGrace)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for !s.ring.IsEmpty() {
		select {
		case <-deadline.C:
			s.logger.Warn("time ring not drained before shutdown, entries dropped",
				"entries", s.ring.Len(),
			)
			return
		case <-tick.C:
		}
	}
}

// sleepToNextSecond спит до ближайшей границы секунды.
// Возвращает false, если пришёл сигнал остановки или ctx отменён.
func sleepToNextSecond(ctx context.Context, stop <-chan struct{}) bool {
	now := time.Now()
	wait := now.Truncate(time.Second).Add(time.Second).Sub(now)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// stopped проверяет сигнал остановки без блокировки.
func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// aheadSlots — сколько будущих слотов кольца может занять окно lookahead.
func aheadSlots(lookahead time.Duration) int {
	return int((lookahead + time.Second - 1) / time.Second)
}

// handOff передаёт срабатывание в Trigger. Ошибка только логируется.
func (s *Scheduler) handOff(ctx context.Context, req domain.TriggerRequest) bool {
	if err := s.trigger.Trigger(ctx, req); err != nil {
		s.logger.Error("failed to hand off trigger",
			"job_id", req.JobID,
			"cause", req.Cause,
			"scheduled_at", req.ScheduledAt,
			"error", err,
		)
		return false
	}
	telemetry.TriggersTotal.WithLabelValues(string(req.Cause)).Inc()
	return true
}
