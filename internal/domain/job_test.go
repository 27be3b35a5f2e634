package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJobSchedule_Advance(t *testing.T) {
	prev := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	next := prev.Add(10 * time.Second)

	job := &JobSchedule{
		ID:            uuid.New(),
		TriggerStatus: TriggerStatusRunning,
		NextFireAt:    prev,
	}

	job.Advance(next)

	if !job.LastFireAt.Equal(prev) {
		t.Errorf("expected LastFireAt %v, got %v", prev, job.LastFireAt)
	}
	if !job.NextFireAt.Equal(next) {
		t.Errorf("expected NextFireAt %v, got %v", next, job.NextFireAt)
	}
	if !job.IsRunning() {
		t.Error("job should stay running")
	}
}

func TestJobSchedule_Advance_ZeroExhausts(t *testing.T) {
	job := &JobSchedule{
		TriggerStatus: TriggerStatusRunning,
		NextFireAt:    time.Now(),
		LastFireAt:    time.Now().Add(-time.Minute),
	}

	job.Advance(time.Time{})

	if job.TriggerStatus != TriggerStatusStopped {
		t.Errorf("expected STOPPED, got %s", job.TriggerStatus)
	}
	if !job.NextFireAt.IsZero() || !job.LastFireAt.IsZero() {
		t.Error("both instants should be zeroed")
	}
}

func TestJobSchedule_NeedsInit(t *testing.T) {
	job := &JobSchedule{TriggerStatus: TriggerStatusRunning}
	if !job.NeedsInit() {
		t.Error("running job without NextFireAt needs init")
	}

	job.TriggerStatus = TriggerStatusStopped
	if job.NeedsInit() {
		t.Error("stopped job never needs init")
	}
}

func TestJobSchedule_Location(t *testing.T) {
	job := &JobSchedule{Timezone: "Not/AZone"}
	if job.Location() != time.UTC {
		t.Error("invalid timezone should fall back to UTC")
	}

	job.Timezone = "Europe/Moscow"
	if job.Location().String() != "Europe/Moscow" {
		t.Errorf("unexpected location %s", job.Location())
	}
}

func TestParseScheduleType(t *testing.T) {
	tests := []struct {
		in    string
		want  ScheduleType
		valid bool
	}{
		{"CRON", ScheduleTypeCron, true},
		{"fixed_rate", ScheduleTypeFixedRate, true},
		{"", ScheduleTypeNone, true},
		{"HOURLY", ScheduleType("HOURLY"), false},
	}

	for _, tt := range tests {
		got := ParseScheduleType(tt.in)
		if got != tt.want {
			t.Errorf("ParseScheduleType(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if got.IsValid() != tt.valid {
			t.Errorf("%s.IsValid() = %v, want %v", got, got.IsValid(), tt.valid)
		}
	}
}

func TestTriggerRequest_IdempotencyKey(t *testing.T) {
	id := uuid.MustParse("7f1c2c1e-6a55-4f25-9b0e-3f0c8e0c1a11")
	at := time.Unix(1700000000, 500_000_000)

	req := TriggerRequest{JobID: id, ScheduledAt: at}
	want := "7f1c2c1e-6a55-4f25-9b0e-3f0c8e0c1a11_1700000000"
	if got := req.IdempotencyKey(); got != want {
		t.Errorf("IdempotencyKey() = %s, want %s", got, want)
	}
}
