package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerRequest — запрос на передачу задачи исполнителю.
type TriggerRequest struct {
	// JobID — задача, которую нужно запустить.
	JobID uuid.UUID `json:"job_id"`

	// Cause — причина срабатывания.
	Cause TriggerCause `json:"cause"`

	// ScheduledAt — плановое время срабатывания.
	// Для ручного запуска — время запроса.
	ScheduledAt time.Time `json:"scheduled_at"`

	// Params — параметры, переопределяющие параметры исполнителя (опционально).
	Params map[string]any `json:"params,omitempty"`
}

// IdempotencyKey возвращает ключ "{job_id}_{scheduled_at_unix}".
//
// Для одной задачи и конкретного планового времени ключ одинаковый,
// поэтому исполнитель может отбрасывать повторные доставки.
func (r TriggerRequest) IdempotencyKey() string {
	return fmt.Sprintf("%s_%d", r.JobID, r.ScheduledAt.Unix())
}
