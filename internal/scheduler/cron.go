package scheduler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Cronwheel/internal/domain"
)

// cronParser — парсер cron-выражений с секундами.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Границы поля "год" в 7-польном выражении.
const (
	minCronYear = 1970
	maxCronYear = 2099
)

// NextFireAfter вычисляет следующее время срабатывания задачи строго после from.
//
// Возвращает нулевое время, если срабатываний больше не будет
// (например, год в cron-выражении уже прошёл или тип NONE).
// Некорректное выражение возвращает ошибку ErrInvalidSchedule — это не то же
// самое, что "срабатываний больше нет".
func NextFireAfter(job *domain.JobSchedule, from time.Time) (time.Time, error) {
	switch job.ScheduleType {
	case domain.ScheduleTypeCron:
		return calculateNextCron(job.ScheduleExpr, from.In(job.Location()))
	case domain.ScheduleTypeFixedRate:
		return calculateNextFixedRate(job.ScheduleExpr, from)
	case domain.ScheduleTypeNone:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, job.ScheduleType)
	}
}

// ValidateSchedule проверяет валидность типа и выражения расписания.
func ValidateSchedule(scheduleType domain.ScheduleType, expr string) error {
	switch scheduleType {
	case domain.ScheduleTypeCron:
		_, _, err := parseCronExpr(expr)
		return err
	case domain.ScheduleTypeFixedRate:
		_, err := parseFixedRate(expr)
		return err
	case domain.ScheduleTypeNone:
		return nil
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, scheduleType)
	}
}

// ValidateJob проверяет расписание и часовой пояс задачи.
func ValidateJob(job *domain.JobSchedule) error {
	if err := ValidateSchedule(job.ScheduleType, job.ScheduleExpr); err != nil {
		return err
	}
	if job.Timezone != "" {
		if _, err := time.LoadLocation(job.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, job.Timezone)
		}
	}
	return nil
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(expr string, from time.Time) (time.Time, error) {
	schedule, years, err := parseCronExpr(expr)
	if err != nil {
		return time.Time{}, err
	}

	t := from
	for {
		next := schedule.Next(t)
		if next.IsZero() {
			// robfig не нашёл совпадений в пределах 5 лет
			return time.Time{}, nil
		}
		if years == nil || years.contains(next.Year()) {
			return next.UTC(), nil // возвращаем в UTC для хранения в БД
		}

		// Перескакиваем к началу следующего разрешённого года
		y, ok := years.after(next.Year())
		if !ok {
			return time.Time{}, nil
		}
		t = time.Date(y, time.January, 1, 0, 0, 0, 0, from.Location()).Add(-time.Second)
	}
}

// calculateNextFixedRate вычисляет следующее время по фиксированной частоте.
func calculateNextFixedRate(expr string, from time.Time) (time.Time, error) {
	sec, err := parseFixedRate(expr)
	if err != nil {
		return time.Time{}, err
	}
	return from.Add(time.Duration(sec) * time.Second).UTC(), nil
}

// maxFixedRateSeconds — наибольшая частота, которая ещё помещается в time.Duration.
const maxFixedRateSeconds = math.MaxInt64 / int64(time.Second)

func parseFixedRate(expr string) (int, error) {
	sec, err := strconv.Atoi(strings.TrimSpace(expr))
	if err != nil {
		return 0, fmt.Errorf("%w: fixed rate %q is not an integer", ErrInvalidSchedule, expr)
	}
	if sec <= 0 {
		return 0, fmt.Errorf("%w: fixed rate must be positive, got %d", ErrInvalidSchedule, sec)
	}
	if int64(sec) > maxFixedRateSeconds {
		return 0, fmt.Errorf("%w: fixed rate %d exceeds %d seconds", ErrInvalidSchedule, sec, maxFixedRateSeconds)
	}
	return sec, nil
}

// parseCronExpr разбирает выражение из 6 полей или из 7 полей с годом.
// Дескрипторы (@daily, @every 1h) передаются парсеру как есть.
func parseCronExpr(expr string) (cron.Schedule, *yearSet, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}

	var years *yearSet
	fields := strings.Fields(expr)
	if len(fields) == 7 {
		ys, err := parseYearField(fields[6])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, expr, err)
		}
		years = ys
		expr = strings.Join(fields[:6], " ")
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse cron expression %q: %v", ErrInvalidSchedule, expr, err)
	}
	return schedule, years, nil
}

// yearSet — множество разрешённых лет. nil означает "любой год".
type yearSet struct {
	allowed map[int]bool
	max     int
}

func (s *yearSet) contains(y int) bool {
	return s.allowed[y]
}

// after возвращает ближайший разрешённый год строго после y.
func (s *yearSet) after(y int) (int, bool) {
	for c := y + 1; c <= s.max; c++ {
		if s.allowed[c] {
			return c, true
		}
	}
	return 0, false
}

// parseYearField разбирает поле года: "*", "?", "2030", "2030,2032", "2030-2035".
func parseYearField(field string) (*yearSet, error) {
	if field == "*" || field == "?" {
		return nil, nil
	}

	set := &yearSet{allowed: make(map[int]bool)}
	for _, part := range strings.Split(field, ",") {
		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i > 0 {
			lo, hi = part[:i], part[i+1:]
		}

		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		to, err := strconv.Atoi(hi)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		if from < minCronYear || to > maxCronYear || from > to {
			return nil, fmt.Errorf("year %q out of range %d-%d", part, minCronYear, maxCronYear)
		}

		for y := from; y <= to; y++ {
			set.allowed[y] = true
		}
		set.max = max(set.max, to)
	}
	return set, nil
}
