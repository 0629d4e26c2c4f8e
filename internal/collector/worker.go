// Package collector implements the collection worker: it consumes
// collection jobs from the queue, runs the device's backup plugin under a
// per-device lock, and publishes the outcome record to the results
// stream. Workers never touch the database; persistence belongs to the
// ingestor.
package collector

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/internal/plugins"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// deviceLockTTL bounds how long a crashed worker can keep a device
// locked. Slightly above the worst-case collection timeout.
const deviceLockTTL = 10 * time.Minute

// Worker executes collection jobs
type Worker struct {
	registry  *plugins.Registry
	locker    *lock.Client
	results   *stream.Publisher
	hardGrace time.Duration
}

// NewWorker creates a collection worker. hardGraceSeconds is added on top
// of a job's soft timeout to form the hard deadline on plugin execution.
func NewWorker(registry *plugins.Registry, locker *lock.Client, results *stream.Publisher, hardGraceSeconds int) *Worker {
	return &Worker{
		registry:  registry,
		locker:    locker,
		results:   results,
		hardGrace: time.Duration(hardGraceSeconds) * time.Second,
	}
}

// Handle processes one collection job delivery. It always returns nil:
// every outcome, including plugin failure, is expressed as a published
// outcome record rather than a queue-level retry. Only malformed
// envelopes are dropped outright.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job queue.CollectionJob
	if err := json.Unmarshal(body, &job); err != nil {
		logger.Error("Dropping malformed collection job", err, map[string]interface{}{
			"body_bytes": len(body),
		})
		return nil
	}

	taskID := uuid.New().String()

	lockKey := lock.DeviceKey(job.DeviceID)
	acquired, err := w.locker.Acquire(ctx, lockKey, deviceLockTTL)
	if err != nil {
		logger.Error("Device lock acquire failed", err, map[string]interface{}{
			"device_id":       job.DeviceID,
			"task_identifier": job.TaskIdentifier,
		})
		return err
	}
	if !acquired {
		// Another worker is already collecting this device. Fail fast
		// instead of queueing a concurrent attempt against the same box.
		monitoring.DeviceLockContention.Inc()
		logger.Warn("Device already being collected", map[string]interface{}{
			"device_id":       job.DeviceID,
			"task_identifier": job.TaskIdentifier,
		})
		w.publishOutcome(ctx, taskID, job, &plugins.Result{
			Status:    models.StatusFailed,
			Timestamp: time.Now().UTC(),
			Log:       []string{"a collection for this device is already in progress"},
		}, 0)
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.locker.Release(releaseCtx, lockKey); err != nil {
			logger.Error("Device lock release failed", err, map[string]interface{}{
				"device_id": job.DeviceID,
			})
		}
	}()

	result, durationMs := w.collect(ctx, &job)
	w.publishOutcome(ctx, taskID, job, result, durationMs)
	return nil
}

// collect runs the plugin named by the job and times the attempt
func (w *Worker) collect(ctx context.Context, job *queue.CollectionJob) (*plugins.Result, int64) {
	plugin, ok := w.registry.Get(job.BackupMethod)
	if !ok {
		logger.Error("Unknown backup method", nil, map[string]interface{}{
			"device_id":       job.DeviceID,
			"backup_method":   job.BackupMethod,
			"task_identifier": job.TaskIdentifier,
		})
		return &plugins.Result{
			Status:    models.StatusFailed,
			Timestamp: time.Now().UTC(),
			Log:       []string{"unknown backup method: " + job.BackupMethod},
		}, 0
	}

	timeout := time.Duration(job.Timeout) * time.Second
	cfg := plugins.Config{
		IP:          job.IP,
		Credentials: job.Credentials,
		Params:      job.PluginParams,
	}

	// Hard deadline: the soft timeout plus a grace period. A plugin that
	// overruns its soft timeout still gets cut off here.
	hardCtx := ctx
	if timeout > 0 && w.hardGrace > 0 {
		var cancel context.CancelFunc
		hardCtx, cancel = context.WithTimeout(ctx, timeout+w.hardGrace)
		defer cancel()
	}

	started := time.Now()
	result := plugin.Execute(hardCtx, cfg, timeout)
	durationMs := time.Since(started).Milliseconds()

	monitoring.CollectionOutcomes.WithLabelValues(result.Status).Inc()
	monitoring.CollectionDuration.Observe(time.Since(started).Seconds())

	logger.Info("Collection finished", map[string]interface{}{
		"device_id":       job.DeviceID,
		"task_identifier": job.TaskIdentifier,
		"backup_method":   job.BackupMethod,
		"status":          result.Status,
		"duration_ms":     durationMs,
	})

	return result, durationMs
}

// publishOutcome writes the outcome record to the results stream. A
// publish failure is logged rather than returned: failing the delivery
// would rerun the whole collection, which is worse than losing one
// outcome record to operator follow-up.
func (w *Worker) publishOutcome(ctx context.Context, taskID string, job queue.CollectionJob, result *plugins.Result, durationMs int64) {
	logLines, err := json.Marshal(result.Log)
	if err != nil {
		logLines = []byte("[]")
	}

	deviceConfig := ""
	if result.DeviceConfig != nil {
		deviceConfig = *result.DeviceConfig
	}

	values := map[string]interface{}{
		"task_id":                taskID,
		"task_identifier":        job.TaskIdentifier,
		"device_id":              strconv.FormatUint(uint64(job.DeviceID), 10),
		"status":                 result.Status,
		"timestamp":              result.Timestamp.UTC().Format(time.RFC3339Nano),
		"log":                    string(logLines),
		"device_config":          deviceConfig,
		"collection_duration_ms": strconv.FormatInt(durationMs, 10),
		"initiated_at":           job.InitiatedAt.UTC().Format(time.RFC3339Nano),
		"is_binary":              strconv.FormatBool(result.IsBinary),
	}

	if err := w.results.Publish(ctx, values); err != nil {
		logger.Error("Failed to publish collection outcome", err, map[string]interface{}{
			"device_id":       job.DeviceID,
			"task_identifier": job.TaskIdentifier,
			"status":          result.Status,
		})
	}
}
