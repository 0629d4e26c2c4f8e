package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slinky-software/devicevault/internal/models"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestNextRunDailySameDay(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleDaily, Hour: 3, Minute: 0}

	from := time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 27, 3, 0, 0, 0, time.UTC), next)
}

func TestNextRunDailyRollsToNextDay(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleDaily, Hour: 1, Minute: 0}

	from := time.Date(2026, 8, 27, 3, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 28, 1, 0, 0, 0, time.UTC), next)
}

func TestNextRunDailyExactTimeIsNotDue(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleDaily, Hour: 1, Minute: 30}

	// Strictly after: an occurrence exactly at from belongs to the past
	from := time.Date(2026, 8, 27, 1, 30, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 28, 1, 30, 0, 0, time.UTC), next)
}

func TestNextRunWeekly(t *testing.T) {
	calc := NewCalculator(time.UTC)
	// Wednesday=3
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleWeekly, DayOfWeek: 3, Hour: 4, Minute: 15}

	// 2026-08-27 is a Thursday, next Wednesday is 2026-09-02
	from := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 9, 2, 4, 15, 0, 0, time.UTC), next)
	assert.Equal(t, time.Wednesday, next.Weekday())
}

func TestNextRunWeeklySameDayBeforeTime(t *testing.T) {
	calc := NewCalculator(time.UTC)
	// Thursday=4
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleWeekly, DayOfWeek: 4, Hour: 23, Minute: 0}

	from := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC) // Thursday noon
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 27, 23, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthly(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleMonthly, DayOfMonth: 15, Hour: 2, Minute: 0}

	from := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 9, 15, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthlyInvalidDayDegradesToFirstOfNextMonth(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleMonthly, DayOfMonth: 31, Hour: 1, Minute: 0}

	// February 2026 has 28 days; the day-31 occurrence lands on March 1
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthlyDay31InLongMonth(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleMonthly, DayOfMonth: 31, Hour: 1, Minute: 0}

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC), next)
}

func TestNextRunCustomCron(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{
		ScheduleType:   models.ScheduleCustomCron,
		CronExpression: "30 6 * * 1", // Mondays 06:30
	}

	from := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC) // Thursday
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 31, 6, 30, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextRunUnparseableCronFallsBackToDaily(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{
		ScheduleType:   models.ScheduleCustomCron,
		CronExpression: "not a cron",
		Hour:           5,
		Minute:         0,
	}

	from := time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 27, 5, 0, 0, 0, time.UTC), next)
}

func TestNextRunUnknownTypeFallsBackToDaily(t *testing.T) {
	calc := NewCalculator(time.UTC)
	schedule := &models.BackupSchedule{ScheduleType: "hourly", Hour: 9, Minute: 0}

	from := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunUsesDisplayTimezone(t *testing.T) {
	berlin := mustLocation(t, "Europe/Berlin")
	calc := NewCalculator(berlin)
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleDaily, Hour: 3, Minute: 0}

	// 01:00 UTC on 2026-08-27 is 03:00 in Berlin (CEST, UTC+2): the
	// local occurrence has just passed, so the next one is tomorrow.
	from := time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC)
	next := calc.NextRun(schedule, from)

	assert.Equal(t, time.Date(2026, 8, 28, 1, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 3, next.In(berlin).Hour())
}

func TestNextRunReturnsUTC(t *testing.T) {
	calc := NewCalculator(mustLocation(t, "America/New_York"))
	schedule := &models.BackupSchedule{ScheduleType: models.ScheduleDaily, Hour: 12, Minute: 0}

	next := calc.NextRun(schedule, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, time.UTC, next.Location())
}
