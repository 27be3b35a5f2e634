package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultLockName — строка scheduler_locks, создаваемая EnsureSchema.
	DefaultLockName = "schedule_lock"

	// DefaultLockTimeout — сколько одна попытка ждёт строку блокировки.
	DefaultLockTimeout = 2 * time.Second

	// pgLockNotAvailable — истёк lock_timeout.
	pgLockNotAvailable = "55P03"

	// lockRetryDelay — пауза между попытками после lock_timeout.
	lockRetryDelay = 50 * time.Millisecond
)

// PgScanLock — ScanLock на строке scheduler_locks (SELECT ... FOR UPDATE).
//
// Блокировка живёт ровно столько, сколько транзакция. Транзакция кладётся
// в ctx функции fn, поэтому JobRepo пишет в неё же: commit освобождает
// блокировку и фиксирует изменения атомарно.
type PgScanLock struct {
	pool        *pgxpool.Pool
	name        string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// PgScanLockConfig — конфигурация PgScanLock.
type PgScanLockConfig struct {
	Name        string        // lock_name (default: schedule_lock)
	LockTimeout time.Duration // ожидание строки в одной попытке (default: 2s)
	Logger      *slog.Logger
}

// NewPgScanLock создаёт PgScanLock.
func NewPgScanLock(pool *pgxpool.Pool, cfg PgScanLockConfig) *PgScanLock {
	if cfg.Name == "" {
		cfg.Name = DefaultLockName
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PgScanLock{
		pool:        pool,
		name:        cfg.Name,
		lockTimeout: cfg.LockTimeout,
		logger:      cfg.Logger,
	}
}

// WithLock захватывает строку блокировки и выполняет fn в той же транзакции.
//
// Ожидание повторяется, пока ctx не отменён. Ошибка fn откатывает
// транзакцию; успех фиксирует её.
func (l *PgScanLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		tx, err := l.acquire(ctx)
		if err == nil {
			return l.run(ctx, tx, fn)
		}
		if !isLockTimeout(err) {
			return err
		}

		l.logger.Debug("scan lock busy, retrying", "lock", l.name)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}
}

// acquire открывает транзакцию и блокирует строку.
func (l *PgScanLock) acquire(ctx context.Context) (pgx.Tx, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		}
		return nil, fmt.Errorf("begin lock tx: %w", err)
	}

	if err := l.lockRow(ctx, tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		}
		return nil, err
	}
	return tx, nil
}

// lockRow выполняет SELECT ... FOR UPDATE, при отсутствии строки создаёт её.
func (l *PgScanLock) lockRow(ctx context.Context, tx pgx.Tx) error {
	timeout := fmt.Sprintf("%dms", l.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	var name string
	err := tx.QueryRow(ctx,
		`SELECT lock_name FROM scheduler_locks WHERE lock_name = $1 FOR UPDATE`,
		l.name,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		// INSERT держит блокировку строки до конца транзакции
		_, err = tx.Exec(ctx,
			`INSERT INTO scheduler_locks (lock_name) VALUES ($1) ON CONFLICT (lock_name) DO NOTHING`,
			l.name,
		)
		if err != nil {
			return fmt.Errorf("create lock row: %w", err)
		}
		err = tx.QueryRow(ctx,
			`SELECT lock_name FROM scheduler_locks WHERE lock_name = $1 FOR UPDATE`,
			l.name,
		).Scan(&name)
	}
	if err != nil {
		return fmt.Errorf("lock row %s: %w", l.name, err)
	}
	return nil
}

// run выполняет fn под блокировкой и завершает транзакцию.
func (l *PgScanLock) run(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) error {
	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			l.logger.Warn("rollback scan tx failed", "lock", l.name, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit scan tx: %w", err)
	}
	return nil
}

// isLockTimeout проверяет, что ошибка — истёкший lock_timeout.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}
