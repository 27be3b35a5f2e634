package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Cronwheel/internal/config"
	"github.com/shaiso/Cronwheel/internal/lock"
	"github.com/shaiso/Cronwheel/internal/mq"
	"github.com/shaiso/Cronwheel/internal/repo"
	"github.com/shaiso/Cronwheel/internal/scheduler"
	"github.com/shaiso/Cronwheel/internal/trigger"
)

// redisLockPrefix — префикс ключа блокировки в Redis.
const redisLockPrefix = "cronwheel:lock:"

// buildLock создаёт блокировку сканирования по cfg.Lock.Backend.
// cleanup освобождает ресурсы блокировки (соединение Redis).
func buildLock(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (scheduler.ScanLock, func(), error) {
	noop := func() {}

	switch cfg.Lock.Backend {
	case config.LockBackendPostgres:
		return repo.NewPgScanLock(pool, repo.PgScanLockConfig{
			Name:        cfg.Lock.Name,
			LockTimeout: cfg.Lock.Timeout,
			Logger:      logger,
		}), noop, nil

	case config.LockBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}

		l, err := lock.NewRedisLock(client, lock.RedisConfig{
			Key:    redisLockPrefix + cfg.Lock.Name,
			TTL:    cfg.Lock.TTL,
			Logger: logger,
		})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return l, func() { _ = client.Close() }, nil

	case config.LockBackendLocal:
		logger.Warn("local scan lock: run a single scheduler node only")
		return lock.NewLocal(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}

// buildSender создаёт доставку срабатываний.
// В dry run возвращает LogSender и nil соединение.
func buildSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (trigger.Sender, *mq.Connection, error) {
	if cfg.DryRun {
		logger.Info("dry run: triggers are logged, not published")
		return trigger.LogSender{Logger: logger}, nil, nil
	}

	conn, err := connectMQ(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return mq.NewPublisher(conn, logger), conn, nil
}

// connectMQ подключается к RabbitMQ и объявляет топологию.
func connectMQ(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mq.Connection, error) {
	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	logger.Debug("rabbitmq topology declared", "topology", mq.TopologyInfo())
	return conn, nil
}

// triggerConfig переводит конфигурацию в trigger.Config.
func triggerConfig(cfg *config.Config, sender trigger.Sender, logger *slog.Logger) trigger.Config {
	return trigger.Config{
		Sender:        sender,
		FastWorkers:   cfg.Trigger.FastWorkers,
		SlowWorkers:   cfg.Trigger.SlowWorkers,
		QueueSize:     cfg.Trigger.QueueSize,
		SlowThreshold: cfg.Trigger.SlowThreshold,
		SendTimeout:   cfg.Trigger.SendTimeout,
		RatePerSec:    cfg.Trigger.RatePerSec,
		Logger:        logger,
	}
}

// schedulerConfig переводит конфигурацию в scheduler.Config.
func schedulerConfig(cfg *config.Config, store scheduler.JobStore, l scheduler.ScanLock, trig scheduler.Trigger, logger *slog.Logger) scheduler.Config {
	return scheduler.Config{
		Store:           store,
		Lock:            l,
		Trigger:         trig,
		Logger:          logger,
		Lookahead:       cfg.Scheduler.Lookahead,
		Lookback:        cfg.Scheduler.Lookback,
		PageSize:        cfg.Scheduler.PageSize,
		ScanTimeout:     cfg.Scheduler.ScanTimeout,
		ScanStopTimeout: cfg.Scheduler.ScanStopTimeout,
		RingDrainGrace:  cfg.Scheduler.RingDrainGrace,
	}
}
