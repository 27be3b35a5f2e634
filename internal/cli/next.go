package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cronwheel/internal/domain"
	"github.com/shaiso/Cronwheel/internal/scheduler"
)

// nextFire — строка вывода команды next.
type nextFire struct {
	N     int       `json:"n"`
	UTC   time.Time `json:"utc"`
	Local string    `json:"local"`
}

func newNextCmd(opts *rootOptions) *cobra.Command {
	var (
		scheduleType string
		timezone     string
		from         string
		count        int
	)

	cmd := &cobra.Command{
		Use:   "next EXPR",
		Short: "Preview next fire times of a schedule",
		Example: `  cronwheel-scheduler next "0 0 9 * * ?" --tz Europe/Moscow
  cronwheel-scheduler next 30 --type FIXED_RATE --count 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := domain.JobSchedule{
				ScheduleType: domain.ParseScheduleType(scheduleType),
				ScheduleExpr: args[0],
				Timezone:     timezone,
			}
			if err := scheduler.ValidateJob(&job); err != nil {
				return err
			}

			start := time.Now().UTC()
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				start = t.UTC()
			}

			fires, err := previewFires(&job, start, count)
			if err != nil {
				return err
			}

			out := opts.output(cmd)
			if len(fires) == 0 {
				out.Success("No further fire times")
			}

			rows := make([][]string, len(fires))
			for i, f := range fires {
				rows[i] = []string{strconv.Itoa(f.N), f.UTC.Format(time.RFC3339), f.Local}
			}
			return out.Print([]string{"#", "UTC", "LOCAL"}, rows, fires)
		},
	}

	cmd.Flags().StringVar(&scheduleType, "type", string(domain.ScheduleTypeCron), "Schedule type: CRON or FIXED_RATE")
	cmd.Flags().StringVar(&timezone, "tz", "", "Timezone for cron evaluation (default: UTC)")
	cmd.Flags().StringVar(&from, "from", "", "Start instant in RFC3339 (default: now)")
	cmd.Flags().IntVar(&count, "count", 5, "Number of fire times to show")

	return cmd
}

// previewFires вычисляет до count следующих срабатываний после start.
func previewFires(job *domain.JobSchedule, start time.Time, count int) ([]nextFire, error) {
	loc := job.Location()
	fires := make([]nextFire, 0, count)

	cursor := start
	for i := 1; i <= count; i++ {
		next, err := scheduler.NextFireAfter(job, cursor)
		if err != nil {
			return nil, err
		}
		if next.IsZero() {
			break
		}
		fires = append(fires, nextFire{
			N:     i,
			UTC:   next,
			Local: next.In(loc).Format("2006-01-02 15:04:05 MST"),
		})
		cursor = next
	}
	return fires, nil
}
