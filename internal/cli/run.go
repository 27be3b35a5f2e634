package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cronwheel/internal/api"
	"github.com/shaiso/Cronwheel/internal/repo"
	"github.com/shaiso/Cronwheel/internal/scheduler"
	"github.com/shaiso/Cronwheel/internal/telemetry"
	"github.com/shaiso/Cronwheel/internal/trigger"
)

// Компиляционные проверки реализаций интерфейсов.
var (
	_ scheduler.JobStore = (*repo.JobRepo)(nil)
	_ scheduler.ScanLock = (*repo.PgScanLock)(nil)
	_ scheduler.Trigger  = (*trigger.Pool)(nil)
	_ api.JobStore       = (*repo.JobRepo)(nil)
	_ api.Dispatcher     = (*trigger.Pool)(nil)
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var dryRun, migrate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat, nil)

			pool, err := repo.NewPool(ctx, cfg.DBURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()
			logger.Info("db connected")

			if migrate {
				if err := repo.EnsureSchema(ctx, pool); err != nil {
					return err
				}
				logger.Info("schema applied")
			}

			jobs := repo.NewJobRepo(pool)

			scanLock, closeLock, err := buildLock(ctx, cfg, pool, logger)
			if err != nil {
				return err
			}
			defer closeLock()

			sender, conn, err := buildSender(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}

			triggers := trigger.NewPool(triggerConfig(cfg, sender, logger))
			triggers.Start()
			defer triggers.Stop()

			sched, err := scheduler.New(schedulerConfig(cfg, jobs, scanLock, triggers, logger))
			if err != nil {
				return err
			}

			var manual *trigger.ManualListener
			if conn != nil {
				manual = trigger.NewManualListener(conn, jobs, triggers, logger)
				go func() {
					if err := manual.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("manual listener stopped", "error", err)
					}
				}()
			}

			var ready atomic.Bool
			mux := telemetry.NewMux(ready.Load)
			api.NewHandler(api.Config{Jobs: jobs, Dispatch: triggers, Logger: logger}).RegisterRoutes(mux)

			srv := &http.Server{
				Addr:              ":" + cfg.HTTPPort,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", "error", err)
					stop()
				}
			}()

			// Scheduler останавливается через Stop, а не отменой ctx
			if err := sched.Start(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			ready.Store(true)

			<-ctx.Done()
			ready.Store(false)
			logger.Info("shutdown signal received")

			if manual != nil {
				manual.Stop()
			}
			sched.Stop()
			triggers.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", "error", err)
			}

			logger.Info("scheduler node stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log triggers instead of publishing to RabbitMQ")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply schema before starting")

	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create job and lock tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			pool, err := repo.NewPool(cmd.Context(), cfg.DBURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()

			if err := repo.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}

			opts.output(cmd).Success("Schema applied")
			return nil
		},
	}
}
