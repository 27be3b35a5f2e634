package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Cronwheel/internal/lock"
)

const testKey = "cronwheel:scan-lock"

func newRedisLock(t *testing.T, ttl time.Duration) (*lock.RedisLock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := lock.NewRedisLock(client, lock.RedisConfig{
		Key:        testKey,
		TTL:        ttl,
		RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return l, mr
}

func TestNewRedisLock_RequiresKey(t *testing.T) {
	_, err := lock.NewRedisLock(redis.NewClient(&redis.Options{}), lock.RedisConfig{})
	assert.Error(t, err)
}

func TestRedisLock_HoldsAndReleases(t *testing.T) {
	l, mr := newRedisLock(t, time.Second)

	var held bool
	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		held = mr.Exists(testKey)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, held, "key should exist while fn runs")
	assert.False(t, mr.Exists(testKey), "key should be deleted after fn returns")
}

func TestRedisLock_PropagatesFnError(t *testing.T) {
	l, mr := newRedisLock(t, time.Second)
	fnErr := errors.New("boom")

	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		return fnErr
	})

	require.ErrorIs(t, err, fnErr)
	assert.False(t, mr.Exists(testKey), "lock must be released on error")
}

func TestRedisLock_BlocksUntilContextDone(t *testing.T) {
	l, mr := newRedisLock(t, time.Second)
	require.NoError(t, mr.Set(testKey, "other-node"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	called := false
	err := l.WithLock(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, lock.ErrLockNotAcquired)
	assert.False(t, called)

	got, _ := mr.Get(testKey)
	assert.Equal(t, "other-node", got, "foreign lease must stay untouched")
}

func TestRedisLock_AcquiresAfterRelease(t *testing.T) {
	l, mr := newRedisLock(t, time.Second)
	require.NoError(t, mr.Set(testKey, "other-node"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		mr.Del(testKey)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	called := false
	err := l.WithLock(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	l, _ := newRedisLock(t, time.Second)

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), func(ctx context.Context) error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two holders inside the critical section")
}

func TestRedisLock_RenewsLease(t *testing.T) {
	l, mr := newRedisLock(t, 300*time.Millisecond)

	var exists bool
	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		// miniredis двигает TTL только через FastForward
		mr.FastForward(200 * time.Millisecond)
		time.Sleep(150 * time.Millisecond)
		mr.FastForward(200 * time.Millisecond)
		exists = mr.Exists(testKey)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, exists, "lease should be extended while fn runs")
}

func TestRedisLock_LostLeaseCancelsFn(t *testing.T) {
	l, mr := newRedisLock(t, 150*time.Millisecond)

	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		// Другой узел перехватил lease
		require.NoError(t, mr.Set(testKey, "other-node"))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	})

	require.ErrorIs(t, err, lock.ErrLockLost)

	got, _ := mr.Get(testKey)
	assert.Equal(t, "other-node", got, "release must not delete a foreign lease")
}

func TestRedisLock_LostLeaseAfterSuccessKeepsResult(t *testing.T) {
	l, mr := newRedisLock(t, 150*time.Millisecond)

	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		require.NoError(t, mr.Set(testKey, "other-node"))

		// Потеря замечена, но работа fn уже завершена успешно
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return nil
	})

	require.NoError(t, err, "completed fn must not be reported as failed")

	got, _ := mr.Get(testKey)
	assert.Equal(t, "other-node", got)
}
