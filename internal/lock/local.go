package lock

import (
	"context"
	"fmt"
)

// Local — ScanLock внутри одного процесса.
//
// Подходит для single-node запуска и тестов: взаимное исключение
// действует только между горутинами процесса.
type Local struct {
	sem chan struct{}
}

// NewLocal создаёт Local.
func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

// WithLock выполняет fn под блокировкой. Ожидание прерывается отменой ctx.
func (l *Local) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
	}
	defer func() { <-l.sem }()

	return fn(ctx)
}
