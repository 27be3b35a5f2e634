package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL — время жизни lease по умолчанию.
	DefaultTTL = 30 * time.Second

	// DefaultRetryDelay — пауза между попытками захвата.
	DefaultRetryDelay = 100 * time.Millisecond

	// releaseTimeout — таймаут освобождения lease после отмены ctx.
	releaseTimeout = 2 * time.Second
)

// Lua: удалить ключ, только если он принадлежит нашему токену.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lua: продлить ключ, только если он принадлежит нашему токену.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLock — ScanLock на lease в Redis.
//
// Захват: SET key token NX PX ttl, повторяется до успеха или отмены ctx.
// Пока fn выполняется, lease продлевается каждые ttl/3. Если lease потерян
// (ключ истёк и его захватил другой узел), ctx функции fn отменяется;
// если fn после этого вернула ошибку, WithLock возвращает ErrLockLost.
// Успешный результат fn потеря lease не отменяет.
type RedisLock struct {
	client     redis.UniversalClient
	key        string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

// RedisConfig — конфигурация RedisLock.
type RedisConfig struct {
	Key        string        // имя ресурса (обязательно)
	TTL        time.Duration // время жизни lease (default: 30s)
	RetryDelay time.Duration // пауза между попытками (default: 100ms)
	Logger     *slog.Logger
}

// NewRedisLock создаёт RedisLock.
func NewRedisLock(client redis.UniversalClient, cfg RedisConfig) (*RedisLock, error) {
	if cfg.Key == "" {
		return nil, errors.New("lock key is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RedisLock{
		client:     client,
		key:        cfg.Key,
		ttl:        cfg.TTL,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}, nil
}

// Key возвращает ключ блокировки.
func (l *RedisLock) Key() string {
	return l.key
}

// WithLock выполняет fn, удерживая lease.
func (l *RedisLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.New().String()

	if err := l.acquire(ctx, token); err != nil {
		return err
	}

	lockCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost := make(chan struct{})
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		l.renew(lockCtx, token, lost, cancel)
	}()

	fnErr := fn(lockCtx)

	cancel()
	<-renewDone

	if err := l.release(ctx, token); err != nil {
		l.logger.Warn("failed to release scan lock", "key", l.key, "error", err)
	}

	select {
	case <-lost:
		if fnErr == nil {
			// fn уже завершилась успешно: её результат зафиксирован
			l.logger.Warn("scan lock lost after fn completed", "key", l.key)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrLockLost, fnErr)
	default:
	}
	return fnErr
}

// acquire блокируется до захвата lease или отмены ctx.
func (l *RedisLock) acquire(ctx context.Context, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
			}
			return fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}

// renew продлевает lease, пока ctx не отменён.
func (l *RedisLock) renew(ctx context.Context, token string, lost chan<- struct{}, cancel context.CancelFunc) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("failed to extend scan lock", "key", l.key, "error", err)
				continue
			}
			if res == 0 {
				l.logger.Error("scan lock lost", "key", l.key)
				close(lost)
				cancel()
				return
			}
		}
	}
}

// release удаляет lease, если он всё ещё наш.
func (l *RedisLock) release(ctx context.Context, token string) error {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	res, err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}
