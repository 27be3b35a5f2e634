package trigger

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

const (
	defaultFastWorkers   = 20
	defaultSlowWorkers   = 10
	defaultQueueSize     = 1000
	defaultSlowThreshold = 500 * time.Millisecond
	defaultSlowLimit     = 10
	defaultSendTimeout   = 10 * time.Second
)

// Полосы пула.
const (
	laneFast = "fast"
	laneSlow = "slow"
)

// Config — конфигурация Pool.
type Config struct {
	// Sender — доставка срабатываний (обязательно).
	Sender Sender

	// FastWorkers — воркеры быстрой полосы (default: 20).
	FastWorkers int

	// SlowWorkers — воркеры медленной полосы (default: 10).
	SlowWorkers int

	// QueueSize — ёмкость очереди каждой полосы (default: 1000).
	QueueSize int

	// SlowThreshold — отправка дольше порога считается медленной (default: 500ms).
	SlowThreshold time.Duration

	// SlowLimit — после стольких медленных отправок за минуту задача
	// уходит в медленную полосу до конца минуты (default: 10).
	SlowLimit int

	// SendTimeout — таймаут одной отправки (default: 10s).
	SendTimeout time.Duration

	// RatePerSec — общий лимит отправок в секунду. 0 — без лимита.
	RatePerSec float64

	// Logger — логгер (default: slog.Default()).
	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Pool — асинхронная передача срабатываний исполнителям.
//
// Trigger не блокируется: запрос кладётся в очередь полосы или
// отклоняется с ErrQueueFull. Задачи, которые часто отправляются медленно,
// уходят в отдельную полосу и не задерживают остальные.
//
// Stop отбрасывает ещё не отправленные запросы: они считаются
// в triggers_dropped_total{reason="stopped"} и не попадают к исполнителю.
type Pool struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu        sync.RWMutex
	accepting bool
	started   bool

	fast chan domain.TriggerRequest
	slow chan domain.TriggerRequest

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Счётчики медленных отправок в текущей минуте.
	slowMu     sync.Mutex
	slowMinute int64
	slowCounts map[uuid.UUID]int
}

// NewPool создаёт Pool. Воркеры запускаются в Start.
func NewPool(cfg Config) *Pool {
	if cfg.FastWorkers <= 0 {
		cfg.FastWorkers = defaultFastWorkers
	}
	if cfg.SlowWorkers <= 0 {
		cfg.SlowWorkers = defaultSlowWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = defaultSlowThreshold
	}
	if cfg.SlowLimit <= 0 {
		cfg.SlowLimit = defaultSlowLimit
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sender == nil {
		cfg.Sender = LogSender{Logger: cfg.Logger}
	}

	p := &Pool{
		cfg:        cfg,
		logger:     telemetry.WithComponent(cfg.Logger, "trigger_pool"),
		fast:       make(chan domain.TriggerRequest, cfg.QueueSize),
		slow:       make(chan domain.TriggerRequest, cfg.QueueSize),
		stop:       make(chan struct{}),
		slowCounts: make(map[uuid.UUID]int),
	}
	if cfg.RatePerSec > 0 {
		burst := max(int(cfg.RatePerSec), 1)
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return p
}

// Capacity возвращает общее число воркеров обеих полос.
func (p *Pool) Capacity() int {
	return p.cfg.FastWorkers + p.cfg.SlowWorkers
}

// Start запускает воркеры. Повторный вызов ничего не делает.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true
	p.accepting = true

	for i := range p.cfg.FastWorkers {
		p.wg.Add(1)
		go p.worker(laneFast, i, p.fast)
	}
	for i := range p.cfg.SlowWorkers {
		p.wg.Add(1)
		go p.worker(laneSlow, i, p.slow)
	}

	p.logger.Info("trigger pool started",
		"fast_workers", p.cfg.FastWorkers,
		"slow_workers", p.cfg.SlowWorkers,
		"queue_size", p.cfg.QueueSize,
	)
}

// Trigger ставит срабатывание в очередь. Не блокируется.
func (p *Pool) Trigger(ctx context.Context, req domain.TriggerRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.accepting {
		telemetry.TriggersDropped.WithLabelValues("stopped").Inc()
		return ErrPoolStopped
	}

	lane, queue := laneFast, p.fast
	if p.isSlow(req.JobID) {
		lane, queue = laneSlow, p.slow
	}

	select {
	case queue <- req:
		return nil
	default:
		telemetry.TriggersDropped.WithLabelValues("queue_full").Inc()
		p.logger.Warn("trigger queue full", "lane", lane, "job_id", req.JobID)
		return ErrQueueFull
	}
}

// Stop прекращает приём, дожидается текущих отправок и отбрасывает очередь.
// Идемпотентен.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.accepting = false
		p.mu.Unlock()

		close(p.stop)
		p.wg.Wait()

		dropped := drain(p.fast) + drain(p.slow)
		if dropped > 0 {
			telemetry.TriggersDropped.WithLabelValues("stopped").Add(float64(dropped))
			p.logger.Warn("dropped queued triggers on stop", "count", dropped)
		}
		p.logger.Info("trigger pool stopped")
	})
}

// worker отправляет запросы полосы до Stop.
func (p *Pool) worker(lane string, id int, queue <-chan domain.TriggerRequest) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in trigger worker",
				"lane", lane,
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	for {
		// stop приоритетнее очереди
		select {
		case <-p.stop:
			return
		default:
		}

		select {
		case <-p.stop:
			return
		case req := <-queue:
			p.send(lane, req)
		}
	}
}

// send выполняет одну отправку с учётом лимита и таймаута.
func (p *Pool) send(lane string, req domain.TriggerRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			telemetry.TriggersDropped.WithLabelValues("rate_limited").Inc()
			p.logger.Warn("trigger rate limit wait failed", "job_id", req.JobID, "error", err)
			return
		}
	}

	start := p.cfg.Now()
	err := p.cfg.Sender.Send(ctx, req)
	cost := p.cfg.Now().Sub(start)

	telemetry.TriggerSendDuration.WithLabelValues(lane).Observe(cost.Seconds())
	p.recordCost(req.JobID, cost)

	if err != nil {
		telemetry.TriggersDropped.WithLabelValues("send_error").Inc()
		p.logger.Error("trigger send failed",
			"lane", lane,
			"job_id", req.JobID,
			"cause", req.Cause,
			"scheduled_at", req.ScheduledAt,
			"error", err,
		)
		return
	}

	p.logger.Debug("trigger sent",
		"lane", lane,
		"job_id", req.JobID,
		"cause", req.Cause,
		"cost", cost,
	)
}

// isSlow проверяет, превысила ли задача лимит медленных отправок в этой минуте.
func (p *Pool) isSlow(jobID uuid.UUID) bool {
	p.slowMu.Lock()
	defer p.slowMu.Unlock()

	p.resetMinuteLocked()
	return p.slowCounts[jobID] > p.cfg.SlowLimit
}

// recordCost учитывает медленную отправку.
func (p *Pool) recordCost(jobID uuid.UUID, cost time.Duration) {
	if cost <= p.cfg.SlowThreshold {
		return
	}

	p.slowMu.Lock()
	defer p.slowMu.Unlock()

	p.resetMinuteLocked()
	p.slowCounts[jobID]++
}

// resetMinuteLocked сбрасывает счётчики при смене минуты.
func (p *Pool) resetMinuteLocked() {
	minute := p.cfg.Now().Unix() / 60
	if minute != p.slowMinute {
		p.slowMinute = minute
		clear(p.slowCounts)
	}
}

// drain вычитывает оставшиеся запросы без отправки.
func drain(queue chan domain.TriggerRequest) int {
	n := 0
	for {
		select {
		case <-queue:
			n++
		default:
			return n
		}
	}
}
