package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobSchedule — расписание одной задачи, которое ведёт scheduler.
//
// JobSchedule описывает, когда задача должна срабатывать:
// - По cron-выражению (с секундами): "0 */5 * * * ?"
// - С фиксированной частотой: каждые N секунд
//
// Scanner — единственный, кто меняет NextFireAt, LastFireAt и TriggerStatus.
type JobSchedule struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Name — имя задачи для логов.
	Name string `json:"name,omitempty"`

	// ScheduleType — тип расписания (CRON, FIXED_RATE, NONE).
	ScheduleType ScheduleType `json:"schedule_type"`

	// ScheduleExpr — выражение расписания.
	// Для CRON — cron-выражение из 6 или 7 полей:
	//   "секунды минуты часы дни месяцы дни_недели [год]"
	// Примеры:
	//   "0 0 9 * * ?"        — каждый день в 9:00:00
	//   "*/10 * * * * ?"     — каждые 10 секунд
	//   "0 0 0 1 1 ? 2030"   — один раз, 1 января 2030
	// Для FIXED_RATE — целое число секунд: "10".
	ScheduleExpr string `json:"schedule_expr,omitempty"`

	// Timezone — часовой пояс для cron-выражений.
	// По умолчанию: "UTC".
	Timezone string `json:"timezone"`

	// MisfireStrategy — что делать, если срабатывание пропущено.
	MisfireStrategy MisfireStrategy `json:"misfire_strategy"`

	// TriggerStatus — участвует ли задача в сканировании.
	TriggerStatus TriggerStatus `json:"trigger_status"`

	// NextFireAt — время следующего срабатывания.
	// Нулевое значение при RUNNING означает "нужно вычислить заново".
	NextFireAt time.Time `json:"next_fire_at"`

	// LastFireAt — время предыдущего срабатывания по расписанию.
	LastFireAt time.Time `json:"last_fire_at"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления. Ведёт хранилище:
	// по нему Persist узнаёт, что строку изменили после чтения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRunning возвращает true, если задача участвует в сканировании.
func (j *JobSchedule) IsRunning() bool {
	return j.TriggerStatus == TriggerStatusRunning
}

// NeedsInit возвращает true, если у запущенной задачи ещё не вычислено NextFireAt.
func (j *JobSchedule) NeedsInit() bool {
	return j.IsRunning() && j.NextFireAt.IsZero()
}

// Advance сдвигает расписание на следующее срабатывание.
//
// Текущее NextFireAt становится LastFireAt.
// Если next нулевое — расписание исчерпано, задача останавливается.
func (j *JobSchedule) Advance(next time.Time) {
	if next.IsZero() {
		j.Exhaust()
		return
	}
	j.LastFireAt = j.NextFireAt
	j.NextFireAt = next
}

// Exhaust переводит задачу в терминальное состояние:
// STOPPED, NextFireAt и LastFireAt обнулены.
func (j *JobSchedule) Exhaust() {
	j.TriggerStatus = TriggerStatusStopped
	j.NextFireAt = time.Time{}
	j.LastFireAt = time.Time{}
}

// Location возвращает часовой пояс задачи.
// Невалидный или пустой Timezone трактуется как UTC.
func (j *JobSchedule) Location() *time.Location {
	if j.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
