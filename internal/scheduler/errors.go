package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrInvalidSchedule — некорректный тип или выражение расписания.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrJobChanged — задачу изменили вне сканирования после того, как
	// scanner её прочитал (остановили, перезапустили, удалили).
	ErrJobChanged = errors.New("job changed concurrently")

	// ErrAlreadyStarted — планировщик уже запущен.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrMissingDependency — не передан обязательный коллаборатор (store, lock, trigger).
	ErrMissingDependency = errors.New("missing scheduler dependency")
)
