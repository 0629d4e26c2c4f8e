package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slinky-software/devicevault/internal/dispatch"
	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// Catch-up walk bounds. Both apply: the walk never looks back further
// than a year and never visits more occurrences per schedule than the
// iteration cap, whichever is hit first.
const (
	maxCatchupSpan       = 365 * 24 * time.Hour
	maxCatchupIterations = 10000
)

// catchUp replays recurrences that fell between the previous leader's
// last tick and now. Occurrences inside the restart window are dispatched
// as catch-up jobs; older ones are recorded as missed_window results so
// the gap stays visible without hammering devices with a backlog.
func (d *Daemon) catchUp(ctx context.Context) error {
	state, err := d.states.Load()
	if err != nil {
		return err
	}
	if state.LastTick == nil {
		logger.Info("No previous tick recorded, skipping catch-up", nil)
		return nil
	}

	now := d.now()
	since := state.LastTick.UTC()
	if now.Sub(since) > maxCatchupSpan {
		logger.Warn("Catch-up span truncated", map[string]interface{}{
			"last_tick": since.Format(time.RFC3339),
			"max_span":  maxCatchupSpan.String(),
		})
		since = now.Add(-maxCatchupSpan)
	}
	if !since.Before(now) {
		return nil
	}

	restartWindow := time.Duration(d.cfg.RestartWindowMinutes) * time.Minute

	logger.Info("Running catch-up pass", map[string]interface{}{
		"since":          since.Format(time.RFC3339),
		"restart_window": restartWindow.String(),
	})

	schedules, err := d.schedules.FindEnabled()
	if err != nil {
		return err
	}

	for i := range schedules {
		schedule := &schedules[i]
		d.catchUpSchedule(ctx, schedule, since, now, restartWindow)
	}

	return nil
}

// catchUpSchedule walks one schedule's occurrences in (since, now) and
// resolves each as either a catch-up dispatch or a missed_window record.
// Afterwards the schedule's next run is recomputed from now so the tick
// loop does not re-dispatch the same occurrences.
func (d *Daemon) catchUpSchedule(ctx context.Context, schedule *models.BackupSchedule, since, now time.Time, restartWindow time.Duration) {
	devices, err := d.devices.FindEnabledBySchedule(schedule.ID)
	if err != nil {
		logger.Error("Failed to load devices for catch-up", err, map[string]interface{}{
			"schedule_id": schedule.ID,
		})
		return
	}
	if len(devices) == 0 {
		return
	}

	var (
		cursor     = since
		dispatched int
		missed     int
	)

	for i := 0; i < maxCatchupIterations; i++ {
		occurrence := d.calc.NextRun(schedule, cursor)
		if !occurrence.Before(now) {
			break
		}
		cursor = occurrence

		withinWindow := now.Sub(occurrence) <= restartWindow
		for j := range devices {
			device := &devices[j]
			if withinWindow {
				if _, err := d.dispatcher.Dispatch(ctx, device, dispatch.TriggerCatchup); err != nil {
					logger.Error("Failed to dispatch catch-up job", err, map[string]interface{}{
						"schedule_id": schedule.ID,
						"device_id":   device.ID,
					})
					continue
				}
				dispatched++
			} else {
				if err := d.recordMissedWindow(device, occurrence, now); err != nil {
					logger.Error("Failed to record missed window", err, map[string]interface{}{
						"schedule_id": schedule.ID,
						"device_id":   device.ID,
					})
					continue
				}
				missed++
			}
		}
	}

	if dispatched > 0 || missed > 0 {
		next := d.calc.NextRun(schedule, now)
		if err := d.schedules.UpdateRunTimes(schedule.ID, cursor, next); err != nil {
			logger.Error("Failed to update schedule run times after catch-up", err, map[string]interface{}{
				"schedule_id": schedule.ID,
			})
		}

		logger.Info("Schedule caught up", map[string]interface{}{
			"schedule_id": schedule.ID,
			"dispatched":  dispatched,
			"missed":      missed,
		})
	}
}

// recordMissedWindow writes a synthetic missed_window result for one
// device occurrence. The task identifier is derived from the occurrence
// time, so repeated catch-up passes over the same gap stay idempotent.
func (d *Daemon) recordMissedWindow(device *models.Device, occurrence, now time.Time) error {
	taskIdentifier := fmt.Sprintf("missed:%d:%s", device.ID, occurrence.UTC().Format(time.RFC3339))

	exists, err := d.results.ResultExists(taskIdentifier)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	logLines, _ := json.Marshal([]string{
		fmt.Sprintf("scheduled backup window at %s missed while no scheduler was running",
			occurrence.UTC().Format(time.RFC3339)),
	})

	initiated := occurrence.UTC()
	result := &models.DeviceBackupResult{
		TaskID:         uuid.New().String(),
		TaskIdentifier: taskIdentifier,
		DeviceID:       device.ID,
		Status:         models.StatusMissedWindow,
		Timestamp:      now,
		Log:            string(logLines),
		InitiatedAt:    &initiated,
	}
	if err := d.results.CreateResult(result); err != nil {
		return err
	}

	monitoring.MissedWindows.Inc()
	events.PublishMissedWindow(device.ID, taskIdentifier, initiated.Format(time.RFC3339))
	return nil
}
