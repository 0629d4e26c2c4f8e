// Package scheduler implements the distributed backup scheduler: a
// leader-elected tick loop that walks enabled schedules, dispatches due
// collection jobs, and on startup catches up recurrences missed while no
// leader was running.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// Calculator computes schedule recurrences. All calendar math happens in
// the display timezone; results are returned in UTC for persistence and
// comparison.
type Calculator struct {
	loc    *time.Location
	parser cron.Parser
}

// NewCalculator creates a calculator bound to the display timezone
func NewCalculator(loc *time.Location) *Calculator {
	return &Calculator{
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// NextRun returns the next occurrence of the schedule strictly after
// from, in UTC. Unknown schedule types and unparseable cron expressions
// degrade to daily recurrence rather than silencing the schedule.
func (c *Calculator) NextRun(schedule *models.BackupSchedule, from time.Time) time.Time {
	local := from.In(c.loc)

	switch schedule.ScheduleType {
	case models.ScheduleDaily:
		return c.nextDaily(schedule, local)
	case models.ScheduleWeekly:
		return c.nextWeekly(schedule, local)
	case models.ScheduleMonthly:
		return c.nextMonthly(schedule, local)
	case models.ScheduleCustomCron:
		spec, err := c.parser.Parse(schedule.CronExpression)
		if err != nil {
			logger.Warn("Unparseable cron expression, falling back to daily", map[string]interface{}{
				"schedule_id":     schedule.ID,
				"cron_expression": schedule.CronExpression,
				"error":           err.Error(),
			})
			return c.nextDaily(schedule, local)
		}
		return spec.Next(local).UTC()
	default:
		logger.Warn("Unknown schedule type, falling back to daily", map[string]interface{}{
			"schedule_id":   schedule.ID,
			"schedule_type": schedule.ScheduleType,
		})
		return c.nextDaily(schedule, local)
	}
}

func (c *Calculator) nextDaily(schedule *models.BackupSchedule, local time.Time) time.Time {
	candidate := time.Date(local.Year(), local.Month(), local.Day(),
		schedule.Hour, schedule.Minute, 0, 0, c.loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate.UTC()
}

func (c *Calculator) nextWeekly(schedule *models.BackupSchedule, local time.Time) time.Time {
	target := time.Weekday(schedule.DayOfWeek % 7)

	// At most 8 day-candidates are needed to find the next matching
	// weekday strictly after local.
	for i := 0; i <= 7; i++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day()+i,
			schedule.Hour, schedule.Minute, 0, 0, c.loc)
		if candidate.Weekday() == target && candidate.After(local) {
			return candidate.UTC()
		}
	}
	return c.nextDaily(schedule, local)
}

func (c *Calculator) nextMonthly(schedule *models.BackupSchedule, local time.Time) time.Time {
	day := schedule.DayOfMonth
	if day < 1 {
		day = 1
	}

	firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc)
	for i := 0; i < 48; i++ {
		month := firstOfMonth.AddDate(0, i, 0)

		var candidate time.Time
		if day > daysIn(month) {
			// The configured day does not exist this month; the
			// occurrence degrades to day 1 of the following month.
			candidate = time.Date(month.Year(), month.Month(), 1,
				schedule.Hour, schedule.Minute, 0, 0, c.loc).AddDate(0, 1, 0)
		} else {
			candidate = time.Date(month.Year(), month.Month(), day,
				schedule.Hour, schedule.Minute, 0, 0, c.loc)
		}

		if candidate.After(local) {
			return candidate.UTC()
		}
	}
	return c.nextDaily(schedule, local)
}

// daysIn returns the number of days in the month containing t
func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
