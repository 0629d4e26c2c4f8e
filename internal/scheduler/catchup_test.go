package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/pkg/config"
)

type dispatchCall struct {
	deviceID uint
	trigger  string
}

type fakeDispatcher struct {
	calls []dispatchCall
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, device *models.Device, trigger string) (string, error) {
	f.calls = append(f.calls, dispatchCall{deviceID: device.ID, trigger: trigger})
	return fmt.Sprintf("%s:%d:test", trigger, device.ID), nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	return db
}

func newTestDaemon(t *testing.T, db *gorm.DB, dispatcher Dispatcher, now time.Time) *Daemon {
	t.Helper()
	cfg := &config.Config{
		TickIntervalSeconds:  60,
		LockTTLSeconds:       180,
		RestartWindowMinutes: 120,
		SchedulerLockKey:     "test:scheduler:lock",
	}

	d := NewDaemon(
		cfg,
		nil,
		repository.NewSchedulerStateRepository(db),
		repository.NewScheduleRepository(db),
		repository.NewDeviceRepository(db),
		repository.NewResultRepository(db),
		dispatcher,
		NewCalculator(time.UTC),
	)
	d.now = func() time.Time { return now }
	return d
}

func seedScheduleWithDevice(t *testing.T, db *gorm.DB, hour, minute int) (*models.BackupSchedule, *models.Device) {
	t.Helper()

	schedule := &models.BackupSchedule{
		Name:         "nightly",
		ScheduleType: models.ScheduleDaily,
		Hour:         hour,
		Minute:       minute,
		Enabled:      true,
	}
	require.NoError(t, db.Create(schedule).Error)

	device := &models.Device{
		Name:             "sw-core-01",
		IPAddress:        "10.0.0.1",
		BackupMethod:     "noop",
		Enabled:          true,
		BackupScheduleID: &schedule.ID,
	}
	require.NoError(t, db.Create(device).Error)

	return schedule, device
}

func seedLastTick(t *testing.T, db *gorm.DB, lastTick time.Time) {
	t.Helper()
	state := &models.SchedulerState{ID: models.SchedulerStateID, LastTick: &lastTick}
	require.NoError(t, db.Save(state).Error)
}

func TestCatchUpDispatchesRecentOccurrence(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	// Occurrence at 10:30 is 90 minutes ago, inside the 120-minute window
	_, device := seedScheduleWithDevice(t, db, 10, 30)
	seedLastTick(t, db, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC))

	dispatcher := &fakeDispatcher{}
	d := newTestDaemon(t, db, dispatcher, now)

	require.NoError(t, d.catchUp(context.Background()))

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, device.ID, dispatcher.calls[0].deviceID)
	assert.Equal(t, "scheduled_catchup", dispatcher.calls[0].trigger)

	var count int64
	require.NoError(t, db.Model(&models.DeviceBackupResult{}).Count(&count).Error)
	assert.Zero(t, count, "catch-up dispatch must not synthesize a result row")
}

func TestCatchUpRecordsMissedWindowForOldOccurrence(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	// Occurrence at 09:30 is 150 minutes ago, outside the window
	_, device := seedScheduleWithDevice(t, db, 9, 30)
	seedLastTick(t, db, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC))

	dispatcher := &fakeDispatcher{}
	d := newTestDaemon(t, db, dispatcher, now)

	require.NoError(t, d.catchUp(context.Background()))

	assert.Empty(t, dispatcher.calls)

	var results []models.DeviceBackupResult
	require.NoError(t, db.Find(&results).Error)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusMissedWindow, results[0].Status)
	assert.Equal(t, device.ID, results[0].DeviceID)
	assert.Equal(t, fmt.Sprintf("missed:%d:2026-08-27T09:30:00Z", device.ID), results[0].TaskIdentifier)
}

func TestCatchUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	seedScheduleWithDevice(t, db, 9, 30)
	seedLastTick(t, db, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC))

	d := newTestDaemon(t, db, &fakeDispatcher{}, now)
	require.NoError(t, d.catchUp(context.Background()))

	// Second pass over the same gap must not add rows
	seedLastTick(t, db, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC))
	d2 := newTestDaemon(t, db, &fakeDispatcher{}, now)
	require.NoError(t, d2.catchUp(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.DeviceBackupResult{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCatchUpSkipsWithoutLastTick(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	seedScheduleWithDevice(t, db, 9, 30)

	dispatcher := &fakeDispatcher{}
	d := newTestDaemon(t, db, dispatcher, now)

	require.NoError(t, d.catchUp(context.Background()))

	assert.Empty(t, dispatcher.calls)

	var count int64
	require.NoError(t, db.Model(&models.DeviceBackupResult{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCatchUpAdvancesScheduleNextRun(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	schedule, _ := seedScheduleWithDevice(t, db, 10, 30)
	seedLastTick(t, db, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC))

	d := newTestDaemon(t, db, &fakeDispatcher{}, now)
	require.NoError(t, d.catchUp(context.Background()))

	var reloaded models.BackupSchedule
	require.NoError(t, db.First(&reloaded, schedule.ID).Error)
	require.NotNil(t, reloaded.NextRunAt)
	assert.WithinDuration(t, time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC), reloaded.NextRunAt.UTC(), time.Second)
}
