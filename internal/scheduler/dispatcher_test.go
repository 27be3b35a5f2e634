package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

func TestDispatchTick_CurrentAndPreviousSecond(t *testing.T) {
	now := refTime
	trig := &recordingTrigger{}
	s := newTestScheduler(newMemStore(), trig, &now)

	current, previous, future := uuid.New(), uuid.New(), uuid.New()
	s.Ring().Push(now, current)
	s.Ring().Push(now.Add(-time.Second), previous)
	s.Ring().Push(now.Add(2*time.Second), future)

	if n := s.DispatchTick(context.Background(), now); n != 2 {
		t.Fatalf("expected 2 dispatched, got %d", n)
	}
	if trig.count(current) != 1 || trig.count(previous) != 1 {
		t.Error("current and previous slots should fire")
	}
	if trig.count(future) != 0 {
		t.Error("future slot must not fire yet")
	}
	if !s.Ring().Contains(future, now.Add(2*time.Second)) {
		t.Error("future entry must stay in ring")
	}

	for _, req := range trig.requests() {
		if req.Cause != domain.TriggerCauseCron {
			t.Errorf("ring dispatch should use cause CRON, got %s", req.Cause)
		}
	}
}

func TestDispatchTick_RingDrainWithinTwoTicks(t *testing.T) {
	now := refTime
	trig := &recordingTrigger{}
	s := newTestScheduler(newMemStore(), trig, &now)

	id := uuid.New()
	at := now.Add(4 * time.Second)
	s.Ring().Push(at, id)

	// Тик на секунде at пропущен (задержка пробуждения) — ловит следующий
	s.DispatchTick(context.Background(), at.Add(time.Second))

	if trig.count(id) != 1 {
		t.Error("entry should be drained by the look-back slot")
	}
	if !s.Ring().IsEmpty() {
		t.Error("ring should be empty")
	}
}

func TestDispatchTick_LateEntriesFired(t *testing.T) {
	now := refTime
	trig := &recordingTrigger{}
	s := newTestScheduler(newMemStore(), trig, &now)

	id := uuid.New()
	s.Ring().Push(now.Add(-10*time.Second), id)

	lateBefore := testutil.ToFloat64(telemetry.RingLateTotal)
	if n := s.DispatchTick(context.Background(), now); n != 1 {
		t.Fatalf("expected late entry to fire, got %d", n)
	}
	if late := testutil.ToFloat64(telemetry.RingLateTotal) - lateBefore; late != 1 {
		t.Errorf("expected 1 late entry counted, got %v", late)
	}
	if !s.Ring().IsEmpty() {
		t.Error("late slot should be drained")
	}
}

func TestDispatchTick_LookaheadSlotsUntouched(t *testing.T) {
	now := refTime
	trig := &recordingTrigger{}
	s := newTestScheduler(newMemStore(), trig, &now)

	for i := 1; i <= 5; i++ {
		s.Ring().Push(now.Add(time.Duration(i)*time.Second), uuid.New())
	}

	if n := s.DispatchTick(context.Background(), now); n != 0 {
		t.Errorf("entries in lookahead window must wait, got %d fired", n)
	}
	if s.Ring().Len() != 5 {
		t.Errorf("expected 5 entries left, got %d", s.Ring().Len())
	}
}

func TestDispatchTick_ConfigurableLookback(t *testing.T) {
	now := refTime
	trig := &recordingTrigger{}
	s, err := New(Config{
		Store:    newMemStore(),
		Lock:     &mutexLock{},
		Trigger:  trig,
		Lookback: 3,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range 4 {
		s.Ring().Push(now.Add(-time.Duration(i)*time.Second), uuid.New())
	}

	lateBefore := testutil.ToFloat64(telemetry.RingLateTotal)
	if n := s.DispatchTick(context.Background(), now); n != 4 {
		t.Errorf("expected 4 dispatched with lookback 3, got %d", n)
	}
	if late := testutil.ToFloat64(telemetry.RingLateTotal) - lateBefore; late != 0 {
		t.Errorf("slots within lookback are not late, got %v late", late)
	}
}

func TestDispatchTick_TriggerFailureNotCounted(t *testing.T) {
	now := refTime
	trig := &recordingTrigger{err: errTriggerRejected}
	s := newTestScheduler(newMemStore(), trig, &now)

	s.Ring().Push(now, uuid.New())

	if n := s.DispatchTick(context.Background(), now); n != 0 {
		t.Errorf("rejected hand-off must not count as fired, got %d", n)
	}
}

func TestDispatchTick_Empty(t *testing.T) {
	now := refTime
	s := newTestScheduler(newMemStore(), &recordingTrigger{}, &now)

	if n := s.DispatchTick(context.Background(), now); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}
