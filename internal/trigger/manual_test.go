package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/mq"
	"github.com/shaiso/Cronwheel/internal/repo"
)

type mapLookup struct {
	jobs map[uuid.UUID]*domain.JobSchedule
	err  error
}

func (m *mapLookup) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobSchedule, error) {
	if m.err != nil {
		return nil, m.err
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return job, nil
}

type captureDispatcher struct {
	mu   sync.Mutex
	reqs []domain.TriggerRequest
	err  error
}

func (c *captureDispatcher) Trigger(ctx context.Context, req domain.TriggerRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.reqs = append(c.reqs, req)
	return nil
}

func manualDelivery(payload any) *mq.Delivery {
	return &mq.Delivery{Message: mq.Message{
		ID:      uuid.NewString(),
		Type:    mq.MessageTypeManualTrigger,
		Payload: payload,
	}}
}

func newTestListener(lookup JobLookup, dispatch Dispatcher) *ManualListener {
	l := NewManualListener(nil, lookup, dispatch, nil)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 7, 400, time.UTC) }
	return l
}

func TestManualListener_Dispatches(t *testing.T) {
	job := &domain.JobSchedule{ID: uuid.New(), Name: "report", TriggerStatus: domain.TriggerStatusStopped}
	lookup := &mapLookup{jobs: map[uuid.UUID]*domain.JobSchedule{job.ID: job}}
	dispatch := &captureDispatcher{}
	l := newTestListener(lookup, dispatch)

	d := manualDelivery(mq.ManualTriggerPayload{JobID: job.ID, Params: map[string]any{"k": "v"}})
	if err := l.Handle(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dispatch.reqs) != 1 {
		t.Fatalf("expected 1 dispatched request, got %d", len(dispatch.reqs))
	}
	req := dispatch.reqs[0]
	if req.Cause != domain.TriggerCauseManual {
		t.Errorf("expected cause MANUAL, got %s", req.Cause)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 7, 0, time.UTC); !req.ScheduledAt.Equal(want) {
		t.Errorf("expected scheduled_at %v, got %v", want, req.ScheduledAt)
	}
	if req.Params["k"] != "v" {
		t.Errorf("params not forwarded: %v", req.Params)
	}
}

func TestManualListener_Rejects(t *testing.T) {
	known := uuid.New()
	lookup := &mapLookup{jobs: map[uuid.UUID]*domain.JobSchedule{known: {ID: known}}}

	tests := []struct {
		name string
		d    *mq.Delivery
	}{
		{"unknown job", manualDelivery(mq.ManualTriggerPayload{JobID: uuid.New()})},
		{"missing job id", manualDelivery(mq.ManualTriggerPayload{})},
		{"wrong type", &mq.Delivery{Message: mq.Message{Type: mq.MessageTypeJobTrigger}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatch := &captureDispatcher{}
			l := newTestListener(lookup, dispatch)

			err := l.Handle(context.Background(), tt.d)
			if !errors.Is(err, mq.ErrReject) {
				t.Errorf("expected ErrReject, got %v", err)
			}
			if len(dispatch.reqs) != 0 {
				t.Error("rejected request must not be dispatched")
			}
		})
	}
}

func TestManualListener_TransientErrorsRetried(t *testing.T) {
	job := &domain.JobSchedule{ID: uuid.New()}

	t.Run("lookup error", func(t *testing.T) {
		l := newTestListener(&mapLookup{err: errors.New("db down")}, &captureDispatcher{})
		err := l.Handle(context.Background(), manualDelivery(mq.ManualTriggerPayload{JobID: job.ID}))
		if err == nil || errors.Is(err, mq.ErrReject) {
			t.Errorf("expected retryable error, got %v", err)
		}
	})

	t.Run("queue full", func(t *testing.T) {
		lookup := &mapLookup{jobs: map[uuid.UUID]*domain.JobSchedule{job.ID: job}}
		l := newTestListener(lookup, &captureDispatcher{err: ErrQueueFull})
		err := l.Handle(context.Background(), manualDelivery(mq.ManualTriggerPayload{JobID: job.ID}))
		if !errors.Is(err, ErrQueueFull) || errors.Is(err, mq.ErrReject) {
			t.Errorf("expected retryable ErrQueueFull, got %v", err)
		}
	})
}

func TestManualListener_StartWithoutConnection(t *testing.T) {
	l := newTestListener(&mapLookup{}, &captureDispatcher{})
	if err := l.Start(context.Background()); err == nil {
		t.Error("expected error without connection")
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), request()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
