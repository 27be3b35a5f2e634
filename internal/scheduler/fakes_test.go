package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Cronwheel/internal/domain"
)

// memStore — хранилище в памяти с транзакциями "всё или ничего".
type memStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]domain.JobSchedule
	staged map[uuid.UUID]domain.JobSchedule

	queryErr   error
	persistErr error

	// afterQuery вызывается между чтением и сохранением (изменения оператора).
	afterQuery func()

	commits   int
	rollbacks int
	lastLimit int
}

func newMemStore(jobs ...domain.JobSchedule) *memStore {
	m := &memStore{jobs: make(map[uuid.UUID]domain.JobSchedule)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.staged = make(map[uuid.UUID]domain.JobSchedule)
	m.mu.Unlock()

	err := fn(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.staged = nil
		m.rollbacks++
		return err
	}
	for id, j := range m.staged {
		m.jobs[id] = j
	}
	m.staged = nil
	m.commits++
	return nil
}

func (m *memStore) QueryDueOrSoonDue(ctx context.Context, before time.Time, limit int) ([]domain.JobSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastLimit = limit
	if m.queryErr != nil {
		return nil, m.queryErr
	}

	var out []domain.JobSchedule
	for _, j := range m.jobs {
		if !j.IsRunning() {
			continue
		}
		if j.NextFireAt.IsZero() || !j.NextFireAt.After(before) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].NextFireAt.Before(out[b].NextFireAt) })
	if len(out) > limit {
		out = out[:limit]
	}

	if m.afterQuery != nil {
		m.mu.Unlock()
		m.afterQuery()
		m.mu.Lock()
	}
	return out, nil
}

// setStatus меняет статус в обход сканирования, как repo.JobRepo.SetStatus.
func (m *memStore) setStatus(id uuid.UUID, status domain.TriggerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.TriggerStatus = status
	j.NextFireAt = time.Time{}
	j.UpdatedAt = time.Now()
	m.jobs[id] = j
}

func (m *memStore) Persist(ctx context.Context, job *domain.JobSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.persistErr != nil {
		return m.persistErr
	}

	stored, ok := m.jobs[job.ID]
	if !ok || !stored.IsRunning() || !stored.UpdatedAt.Equal(job.UpdatedAt) {
		return ErrJobChanged
	}
	job.UpdatedAt = time.Now()
	m.staged[job.ID] = *job
	return nil
}

func (m *memStore) get(id uuid.UUID) domain.JobSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// mutexLock — ScanLock на мьютексе.
type mutexLock struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *mutexLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return fn(ctx)
}

// recordingTrigger запоминает все переданные срабатывания.
type recordingTrigger struct {
	mu       sync.Mutex
	reqs     []domain.TriggerRequest
	err      error
	capacity int
}

var errTriggerRejected = errors.New("rejected")

func (r *recordingTrigger) Trigger(ctx context.Context, req domain.TriggerRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *recordingTrigger) Capacity() int {
	return r.capacity
}

func (r *recordingTrigger) requests() []domain.TriggerRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TriggerRequest(nil), r.reqs...)
}

func (r *recordingTrigger) count(jobID uuid.UUID) int {
	n := 0
	for _, req := range r.requests() {
		if req.JobID == jobID {
			n++
		}
	}
	return n
}

// fixedRateJob создаёт RUNNING задачу с фиксированной частотой.
func fixedRateJob(expr string, next time.Time, strategy domain.MisfireStrategy) domain.JobSchedule {
	return domain.JobSchedule{
		ID:              uuid.New(),
		Name:            "fixed-" + expr,
		ScheduleType:    domain.ScheduleTypeFixedRate,
		ScheduleExpr:    expr,
		MisfireStrategy: strategy,
		TriggerStatus:   domain.TriggerStatusRunning,
		NextFireAt:      next,
	}
}

// newTestScheduler собирает Scheduler с фиксированными часами.
func newTestScheduler(store *memStore, trig *recordingTrigger, now *time.Time) *Scheduler {
	s, err := New(Config{
		Store:   store,
		Lock:    &mutexLock{},
		Trigger: trig,
		Now:     func() time.Time { return *now },
	})
	if err != nil {
		panic(err)
	}
	return s
}
