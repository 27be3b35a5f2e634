package lock

import "errors"

// Ошибки блокировок.
var (
	// ErrLockNotAcquired — блокировку не удалось захватить до отмены ctx.
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrLockNotHeld — освобождается блокировка, которой узел уже не владеет.
	ErrLockNotHeld = errors.New("lock not held")

	// ErrLockLost — lease истёк, пока выполнялась функция под блокировкой.
	ErrLockLost = errors.New("lock lost while held")
)
