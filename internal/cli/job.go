package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/mq"
	"github.com/shaiso/Cronwheel/internal/repo"
	"github.com/shaiso/Cronwheel/internal/scheduler"
	"github.com/shaiso/Cronwheel/internal/telemetry"
)

// newJobCmd — операторские команды над задачами.
func newJobCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage job schedules",
	}

	cmd.AddCommand(
		newJobAddCmd(opts),
		newJobShowCmd(opts),
		newJobStatusCmd(opts, "start", domain.TriggerStatusRunning),
		newJobStatusCmd(opts, "stop", domain.TriggerStatusStopped),
		newJobTriggerCmd(opts),
	)

	return cmd
}

// withJobRepo подключается к БД и выполняет fn.
func withJobRepo(ctx context.Context, opts *rootOptions, fn func(jobs *repo.JobRepo) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	return fn(repo.NewJobRepo(pool))
}

func newJobAddCmd(opts *rootOptions) *cobra.Command {
	var (
		name         string
		scheduleType string
		expr         string
		timezone     string
		misfire      string
		start        bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a job schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := buildJob(name, scheduleType, expr, timezone, misfire, start)
			if err != nil {
				return err
			}

			return withJobRepo(cmd.Context(), opts, func(jobs *repo.JobRepo) error {
				if err := jobs.Create(cmd.Context(), job); err != nil {
					return err
				}

				out := opts.output(cmd)
				out.Success(fmt.Sprintf("Job created: %s", job.ID))
				return printJob(out, job)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Job name (required)")
	cmd.Flags().StringVar(&scheduleType, "type", string(domain.ScheduleTypeCron), "Schedule type: CRON, FIXED_RATE or NONE")
	cmd.Flags().StringVar(&expr, "expr", "", "Cron expression (6 or 7 fields) or rate in seconds")
	cmd.Flags().StringVar(&timezone, "tz", "UTC", "Timezone for cron evaluation")
	cmd.Flags().StringVar(&misfire, "misfire", string(domain.MisfireDoNothing), "Misfire strategy: DO_NOTHING or FIRE_ONCE_NOW")
	cmd.Flags().BoolVar(&start, "start", false, "Create in RUNNING state")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// buildJob проверяет флаги и собирает новую задачу.
// NextFireAt не заполняется: scanner вычислит его при первом чтении.
func buildJob(name, scheduleType, expr, timezone, misfire string, start bool) (*domain.JobSchedule, error) {
	if timezone == "" {
		timezone = "UTC"
	}

	switch strings.ToUpper(misfire) {
	case string(domain.MisfireDoNothing), string(domain.MisfireFireOnceNow):
	default:
		return nil, fmt.Errorf("unknown misfire strategy %q", misfire)
	}

	job := &domain.JobSchedule{
		ID:              uuid.New(),
		Name:            name,
		ScheduleType:    domain.ParseScheduleType(scheduleType),
		ScheduleExpr:    expr,
		Timezone:        timezone,
		MisfireStrategy: domain.ParseMisfireStrategy(strings.ToUpper(misfire)),
		TriggerStatus:   domain.TriggerStatusStopped,
	}
	if start {
		job.TriggerStatus = domain.TriggerStatusRunning
	}

	if err := scheduler.ValidateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func newJobShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			return withJobRepo(cmd.Context(), opts, func(jobs *repo.JobRepo) error {
				job, err := jobs.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJob(opts.output(cmd), job)
			})
		},
	}
}

func newJobStatusCmd(opts *rootOptions, use string, status domain.TriggerStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: fmt.Sprintf("Set job trigger status to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			return withJobRepo(cmd.Context(), opts, func(jobs *repo.JobRepo) error {
				if status == domain.TriggerStatusRunning {
					job, err := jobs.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if err := scheduler.ValidateJob(job); err != nil {
						return err
					}
				}

				if err := jobs.SetStatus(cmd.Context(), id, status); err != nil {
					return err
				}
				opts.output(cmd).Success(fmt.Sprintf("Job %s: %s", id, status))
				return nil
			})
		},
	}
}

func newJobTriggerCmd(opts *rootOptions) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "trigger ID",
		Short: "Request a manual run of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			conn, err := connectMQ(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.NewPublisher(conn, logger).PublishManualTrigger(cmd.Context(), id, p); err != nil {
				return err
			}

			opts.output(cmd).Success(fmt.Sprintf("Manual trigger requested: %s", id))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&params, "param", nil, "Executor parameter as KEY=VALUE (repeatable)")

	return cmd
}

// parseParams разбирает KEY=VALUE пары.
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		params[key] = value
	}
	return params, nil
}

// printJob выводит одну задачу.
func printJob(out *Output, job *domain.JobSchedule) error {
	return out.Print(
		[]string{"ID", "NAME", "TYPE", "EXPR", "TZ", "MISFIRE", "STATUS", "NEXT_FIRE", "LAST_FIRE"},
		[][]string{{
			job.ID.String(),
			job.Name,
			string(job.ScheduleType),
			job.ScheduleExpr,
			job.Timezone,
			string(job.MisfireStrategy),
			job.TriggerStatus.String(),
			formatTime(job.NextFireAt),
			formatTime(job.LastFireAt),
		}},
		job,
	)
}
