package domain

// ScheduleType — тип расписания задачи.
type ScheduleType string

const (
	// ScheduleTypeCron — расписание по cron-выражению.
	ScheduleTypeCron ScheduleType = "CRON"

	// ScheduleTypeFixedRate — срабатывание каждые N секунд.
	ScheduleTypeFixedRate ScheduleType = "FIXED_RATE"

	// ScheduleTypeNone — без расписания, только ручной запуск.
	ScheduleTypeNone ScheduleType = "NONE"
)

// IsValid проверяет, что тип расписания известен.
func (t ScheduleType) IsValid() bool {
	switch t {
	case ScheduleTypeCron, ScheduleTypeFixedRate, ScheduleTypeNone:
		return true
	default:
		return false
	}
}

// ParseScheduleType парсит строку в ScheduleType.
// Неизвестное значение возвращается как есть — IsValid вернёт false.
func ParseScheduleType(s string) ScheduleType {
	switch s {
	case "CRON", "cron":
		return ScheduleTypeCron
	case "FIXED_RATE", "fixed_rate", "FIX_RATE":
		return ScheduleTypeFixedRate
	case "NONE", "none", "":
		return ScheduleTypeNone
	default:
		return ScheduleType(s)
	}
}

// MisfireStrategy — политика обработки пропущенного срабатывания.
type MisfireStrategy string

const (
	// MisfireDoNothing — пропущенное срабатывание игнорируется.
	MisfireDoNothing MisfireStrategy = "DO_NOTHING"

	// MisfireFireOnceNow — пропущенное срабатывание выполняется один раз сейчас.
	MisfireFireOnceNow MisfireStrategy = "FIRE_ONCE_NOW"
)

// ParseMisfireStrategy парсит строку в MisfireStrategy.
// По умолчанию: DO_NOTHING.
func ParseMisfireStrategy(s string) MisfireStrategy {
	switch s {
	case "FIRE_ONCE_NOW", "fire_once_now":
		return MisfireFireOnceNow
	default:
		return MisfireDoNothing
	}
}

// TriggerStatus — статус участия задачи в сканировании.
//
// Жизненный цикл:
//
//	STOPPED → RUNNING (оператор запускает задачу)
//	RUNNING → STOPPED (оператор или исчерпание расписания)
type TriggerStatus int

const (
	// TriggerStatusStopped — задача не сканируется.
	TriggerStatusStopped TriggerStatus = 0

	// TriggerStatusRunning — задача сканируется и срабатывает по расписанию.
	TriggerStatusRunning TriggerStatus = 1
)

// String возвращает строковое представление TriggerStatus.
func (s TriggerStatus) String() string {
	if s == TriggerStatusRunning {
		return "RUNNING"
	}
	return "STOPPED"
}

// TriggerCause — причина срабатывания задачи.
type TriggerCause string

const (
	// TriggerCauseCron — срабатывание по расписанию.
	TriggerCauseCron TriggerCause = "CRON"

	// TriggerCauseMisfire — восстановление пропущенного срабатывания.
	TriggerCauseMisfire TriggerCause = "MISFIRE"

	// TriggerCauseManual — ручной запуск оператором.
	TriggerCauseManual TriggerCause = "MANUAL"
)
