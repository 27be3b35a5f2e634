package trigger

import "errors"

// Ошибки пула передачи срабатываний.
var (
	// ErrQueueFull — очередь полосы заполнена, срабатывание не принято.
	ErrQueueFull = errors.New("trigger queue full")

	// ErrPoolStopped — пул не запущен или уже остановлен.
	ErrPoolStopped = errors.New("trigger pool stopped")
)
