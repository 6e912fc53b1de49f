package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Relay/internal/domain"
)

// cronParser — парсер cron-выражений (стандартные 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время запуска для расписания.
// Учитывает timezone; невалидный timezone откатывается на UTC.
func CalculateNextDue(spec *domain.ScheduleSpec, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil {
		loc = time.UTC
	}
	fromInTz := from.In(loc)

	if spec.CronExpr != "" {
		sched, err := cronParser.Parse(spec.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec.CronExpr, err)
		}
		return sched.Next(fromInTz).UTC(), nil
	}

	if spec.IntervalSec > 0 {
		return fromInTz.Add(time.Duration(spec.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("schedule has neither cron_expr nor interval_sec")
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
