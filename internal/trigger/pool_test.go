package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// gateSender блокирует каждую отправку, пока не открыт gate.
type gateSender struct {
	mu      sync.Mutex
	sent    []domain.TriggerRequest
	started chan struct{}
	gate    chan struct{}
	err     error
}

func newGateSender(open bool) *gateSender {
	s := &gateSender{
		started: make(chan struct{}, 100),
		gate:    make(chan struct{}),
	}
	if open {
		close(s.gate)
	}
	return s
}

func (s *gateSender) Send(ctx context.Context, req domain.TriggerRequest) error {
	s.started <- struct{}{}
	<-s.gate

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, req)
	return nil
}

func (s *gateSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func request() domain.TriggerRequest {
	return domain.TriggerRequest{
		JobID:       uuid.New(),
		Cause:       domain.TriggerCauseCron,
		ScheduledAt: time.Now().Truncate(time.Second),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPool_TriggerBeforeStart(t *testing.T) {
	p := NewPool(Config{Sender: newGateSender(true)})

	if err := p.Trigger(context.Background(), request()); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_Delivers(t *testing.T) {
	sender := newGateSender(true)
	p := NewPool(Config{Sender: sender, FastWorkers: 2, SlowWorkers: 1})
	p.Start()
	defer p.Stop()

	for range 5 {
		if err := p.Trigger(context.Background(), request()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	waitFor(t, func() bool { return sender.count() == 5 })
}

func TestPool_Capacity(t *testing.T) {
	p := NewPool(Config{FastWorkers: 7, SlowWorkers: 3})
	if p.Capacity() != 10 {
		t.Errorf("expected capacity 10, got %d", p.Capacity())
	}

	d := NewPool(Config{})
	if d.Capacity() != defaultFastWorkers+defaultSlowWorkers {
		t.Errorf("unexpected default capacity %d", d.Capacity())
	}
}

func TestPool_QueueFull(t *testing.T) {
	sender := newGateSender(false)
	p := NewPool(Config{Sender: sender, FastWorkers: 1, SlowWorkers: 1, QueueSize: 1})
	p.Start()
	defer func() {
		close(sender.gate)
		p.Stop()
	}()

	// Первый запрос занимает воркер
	if err := p.Trigger(context.Background(), request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-sender.started

	// Второй ждёт в очереди
	if err := p.Trigger(context.Background(), request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := testutil.ToFloat64(telemetry.TriggersDropped.WithLabelValues("queue_full"))
	if err := p.Trigger(context.Background(), request()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := testutil.ToFloat64(telemetry.TriggersDropped.WithLabelValues("queue_full")) - before; got != 1 {
		t.Errorf("expected 1 queue_full drop, got %v", got)
	}
}

func TestPool_StopDropsQueued(t *testing.T) {
	sender := newGateSender(false)
	p := NewPool(Config{Sender: sender, FastWorkers: 1, SlowWorkers: 1, QueueSize: 5})
	p.Start()

	if err := p.Trigger(context.Background(), request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-sender.started

	for range 3 {
		if err := p.Trigger(context.Background(), request()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	before := testutil.ToFloat64(telemetry.TriggersDropped.WithLabelValues("stopped"))

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	// Отпускаем отправку только после сигнала остановки
	<-p.stop
	close(sender.gate)
	<-stopped

	if sender.count() != 1 {
		t.Errorf("only the in-flight request should be sent, got %d", sender.count())
	}
	if got := testutil.ToFloat64(telemetry.TriggersDropped.WithLabelValues("stopped")) - before; got != 3 {
		t.Errorf("expected 3 dropped on stop, got %v", got)
	}

	if err := p.Trigger(context.Background(), request()); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped after Stop, got %v", err)
	}
}

func TestPool_StopIdempotent(t *testing.T) {
	p := NewPool(Config{Sender: newGateSender(true)})
	p.Start()

	p.Stop()
	p.Stop()
}

func TestPool_CanceledContext(t *testing.T) {
	p := NewPool(Config{Sender: newGateSender(true)})
	p.Start()
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Trigger(ctx, request()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPool_SlowLaneRouting(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	p := NewPool(Config{Now: func() time.Time { return now }})

	slowJob, fastJob := uuid.New(), uuid.New()

	for range defaultSlowLimit {
		p.recordCost(slowJob, 600*time.Millisecond)
	}
	if p.isSlow(slowJob) {
		t.Error("job at the limit should stay in the fast lane")
	}

	p.recordCost(slowJob, 600*time.Millisecond)
	if !p.isSlow(slowJob) {
		t.Error("job over the limit should move to the slow lane")
	}

	p.recordCost(fastJob, 100*time.Millisecond)
	if p.isSlow(fastJob) {
		t.Error("fast sends must not be counted")
	}

	// Новая минута — счётчики сбрасываются
	now = now.Add(time.Minute)
	if p.isSlow(slowJob) {
		t.Error("slow counts should reset on minute change")
	}
}

func TestPool_RateLimiterConfigured(t *testing.T) {
	if NewPool(Config{}).limiter != nil {
		t.Error("no limiter expected without RatePerSec")
	}
	if NewPool(Config{RatePerSec: 0.5}).limiter == nil {
		t.Error("limiter expected with RatePerSec")
	}
}

func TestPool_SendErrorCounted(t *testing.T) {
	sender := newGateSender(true)
	sender.err = errors.New("broker down")
	p := NewPool(Config{Sender: sender, FastWorkers: 1, SlowWorkers: 1})
	p.Start()
	defer p.Stop()

	before := testutil.ToFloat64(telemetry.TriggersDropped.WithLabelValues("send_error"))
	if err := p.Trigger(context.Background(), request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, func() bool {
		return testutil.ToFloat64(telemetry.TriggersDropped.WithLabelValues("send_error"))-before == 1
	})
}
