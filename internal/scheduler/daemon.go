package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/slinky-software/devicevault/internal/dispatch"
	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// Dispatcher enqueues a collection job for a device
type Dispatcher interface {
	Dispatch(ctx context.Context, device *models.Device, trigger string) (string, error)
}

// Daemon is the leader-elected scheduler loop. Multiple replicas may run
// it; exactly one holds the Redis leadership lock and dispatches, the
// rest wait hot-standby and take over when the lock frees up.
type Daemon struct {
	cfg        *config.Config
	locker     *lock.Client
	states     *repository.SchedulerStateRepository
	schedules  *repository.ScheduleRepository
	devices    *repository.DeviceRepository
	results    *repository.ResultRepository
	dispatcher Dispatcher
	calc       *Calculator

	// Injectable clock for tests
	now func() time.Time
}

// NewDaemon wires a scheduler daemon from its collaborators
func NewDaemon(
	cfg *config.Config,
	locker *lock.Client,
	states *repository.SchedulerStateRepository,
	schedules *repository.ScheduleRepository,
	devices *repository.DeviceRepository,
	results *repository.ResultRepository,
	dispatcher Dispatcher,
	calc *Calculator,
) *Daemon {
	return &Daemon{
		cfg:        cfg,
		locker:     locker,
		states:     states,
		schedules:  schedules,
		devices:    devices,
		results:    results,
		dispatcher: dispatcher,
		calc:       calc,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (d *Daemon) tickInterval() time.Duration {
	return time.Duration(d.cfg.TickIntervalSeconds) * time.Second
}

func (d *Daemon) lockTTL() time.Duration {
	return time.Duration(d.cfg.LockTTLSeconds) * time.Second
}

// Run blocks until ctx is cancelled or leadership is lost. Losing the
// leadership lock mid-flight is fatal: the caller is expected to exit and
// let process supervision restart a fresh candidate.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquireLeadership(ctx); err != nil {
		return err
	}
	defer d.releaseLeadership()

	if err := d.recordStartup(); err != nil {
		logger.Error("Failed to record scheduler startup", err, nil)
	}

	if err := d.catchUp(ctx); err != nil {
		logger.Error("Catch-up pass failed", err, nil)
	}

	ticker := time.NewTicker(d.tickInterval())
	defer ticker.Stop()

	logger.Info("Scheduler running", map[string]interface{}{
		"pid":           os.Getpid(),
		"tick_interval": d.tickInterval().String(),
		"lock_ttl":      d.lockTTL().String(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// acquireLeadership blocks until this process owns the leadership lock.
// Stale locks held by dead processes on this host are cleared before each
// attempt.
func (d *Daemon) acquireLeadership(ctx context.Context) error {
	key := d.cfg.SchedulerLockKey

	for {
		cleared, err := d.locker.ClearStale(ctx, key)
		if err != nil {
			logger.Error("Stale lock check failed", err, map[string]interface{}{"key": key})
		} else if cleared {
			logger.Warn("Cleared stale scheduler lock left by a dead process", map[string]interface{}{
				"key": key,
			})
		}

		ok, err := d.locker.Acquire(ctx, key, d.lockTTL())
		if err != nil {
			return err
		}
		if ok {
			monitoring.SchedulerLeader.Set(1)
			logger.Info("Scheduler leadership acquired", map[string]interface{}{
				"key":    key,
				"holder": d.locker.Holder(),
			})
			return nil
		}

		holder, _ := d.locker.CurrentHolder(ctx, key)
		logger.Info("Scheduler standing by, leadership held elsewhere", map[string]interface{}{
			"key":    key,
			"holder": holder,
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.tickInterval()):
		}
	}
}

func (d *Daemon) releaseLeadership() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.locker.Release(ctx, d.cfg.SchedulerLockKey); err != nil {
		logger.Error("Failed to release scheduler lock", err, nil)
	}
	monitoring.SchedulerLeader.Set(0)

	if state, err := d.states.Load(); err == nil {
		state.IsRunning = false
		if err := d.states.Save(state); err != nil {
			logger.Error("Failed to record scheduler shutdown", err, nil)
		}
	}
}

func (d *Daemon) recordStartup() error {
	state, err := d.states.Load()
	if err != nil {
		return err
	}

	now := d.now()
	state.IsRunning = true
	state.SchedulerPID = os.Getpid()
	state.LastRestartAt = &now
	return d.states.Save(state)
}

// tick renews leadership, dispatches due schedules and advances last_tick
func (d *Daemon) tick(ctx context.Context) error {
	renewed, err := d.locker.Renew(ctx, d.cfg.SchedulerLockKey, d.lockTTL())
	if err != nil {
		return err
	}
	if !renewed {
		monitoring.SchedulerLeader.Set(0)
		return fmt.Errorf("scheduler leadership lost: lock %s no longer held", d.cfg.SchedulerLockKey)
	}

	now := d.now()
	d.processSchedules(ctx, now)

	state, err := d.states.Load()
	if err != nil {
		return err
	}
	state.LastTick = &now
	if err := d.states.Save(state); err != nil {
		return err
	}

	monitoring.SchedulerTicks.Inc()
	return nil
}

// processSchedules dispatches every enabled schedule whose next run time
// has arrived, then advances the schedule's run bookkeeping.
func (d *Daemon) processSchedules(ctx context.Context, now time.Time) {
	schedules, err := d.schedules.FindEnabled()
	if err != nil {
		logger.Error("Failed to load schedules", err, nil)
		return
	}

	for i := range schedules {
		schedule := &schedules[i]

		if schedule.NextRunAt == nil {
			// Never ran, or timing was edited and the column cleared.
			// Walk forward from the last run (or a day back when there is
			// none) so an occurrence that already passed still fires once.
			from := now.Add(-24 * time.Hour)
			if schedule.LastRunAt != nil {
				from = *schedule.LastRunAt
			}
			next := d.calc.NextRun(schedule, from)
			schedule.NextRunAt = &next
			if next.After(now) {
				if err := d.schedules.Save(schedule); err != nil {
					logger.Error("Failed to initialize schedule next run", err, map[string]interface{}{
						"schedule_id": schedule.ID,
					})
				}
				continue
			}
		}

		if now.Before(*schedule.NextRunAt) {
			continue
		}

		d.dispatchSchedule(ctx, schedule, dispatch.TriggerScheduled)

		next := d.calc.NextRun(schedule, now)
		if err := d.schedules.UpdateRunTimes(schedule.ID, now, next); err != nil {
			logger.Error("Failed to update schedule run times", err, map[string]interface{}{
				"schedule_id": schedule.ID,
			})
		}
	}
}

// dispatchSchedule enqueues a collection job for every enabled device on
// the schedule. Per-device failures are logged and skipped so one broken
// device cannot block the rest of the fleet.
func (d *Daemon) dispatchSchedule(ctx context.Context, schedule *models.BackupSchedule, trigger string) {
	devices, err := d.devices.FindEnabledBySchedule(schedule.ID)
	if err != nil {
		logger.Error("Failed to load devices for schedule", err, map[string]interface{}{
			"schedule_id": schedule.ID,
		})
		return
	}

	for i := range devices {
		device := &devices[i]
		if _, err := d.dispatcher.Dispatch(ctx, device, trigger); err != nil {
			logger.Error("Failed to dispatch collection job", err, map[string]interface{}{
				"schedule_id": schedule.ID,
				"device_id":   device.ID,
			})
		}
	}
}
