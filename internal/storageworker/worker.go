// Package storageworker implements the storage stage: it consumes
// storage jobs produced for successful collections, writes the collected
// content through the configured backend, and publishes the storage
// outcome record to the storage results stream.
package storageworker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/storage"
	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// Worker executes storage jobs
type Worker struct {
	backends     *storage.Registry
	results      *stream.Publisher
	storeTimeout time.Duration
}

// NewWorker creates a storage worker
func NewWorker(backends *storage.Registry, results *stream.Publisher, storeTimeoutSeconds int) *Worker {
	return &Worker{
		backends:     backends,
		results:      results,
		storeTimeout: time.Duration(storeTimeoutSeconds) * time.Second,
	}
}

// Handle processes one storage job delivery. Like the collection worker
// it always returns nil: failures become published failure outcomes, not
// queue-level retries.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job queue.StorageJob
	if err := json.Unmarshal(body, &job); err != nil {
		logger.Error("Dropping malformed storage job", err, map[string]interface{}{
			"body_bytes": len(body),
		})
		return nil
	}

	started := time.Now()
	ref, logLine, err := w.store(ctx, &job)
	durationMs := time.Since(started).Milliseconds()

	status := models.StatusSuccess
	if err != nil {
		status = models.StatusFailed
		logLine = err.Error()
		logger.Error("Storage attempt failed", err, map[string]interface{}{
			"device_id":       job.DeviceID,
			"task_identifier": job.TaskIdentifier,
			"backend":         job.StorageBackend,
		})
	} else {
		logger.Info("Backup stored", map[string]interface{}{
			"device_id":       job.DeviceID,
			"task_identifier": job.TaskIdentifier,
			"backend":         job.StorageBackend,
			"storage_ref":     ref,
			"duration_ms":     durationMs,
		})
	}

	monitoring.StorageOutcomes.WithLabelValues(status, job.StorageBackend).Inc()
	monitoring.StorageDuration.Observe(time.Since(started).Seconds())

	w.publishOutcome(ctx, job, status, ref, logLine, durationMs)
	return nil
}

// store resolves the backend, decodes the content and writes it
func (w *Worker) store(ctx context.Context, job *queue.StorageJob) (ref, logLine string, err error) {
	backend, ok := w.backends.Get(job.StorageBackend)
	if !ok {
		return "", "", fmt.Errorf("unsupported storage backend: %s", job.StorageBackend)
	}

	content := []byte(job.DeviceConfig)
	if job.IsBinary {
		decoded, err := base64.StdEncoding.DecodeString(job.DeviceConfig)
		if err != nil {
			return "", "", fmt.Errorf("decode binary content: %w", err)
		}
		content = decoded
	}

	relPath := job.StorageRelPath
	if relPath == "" {
		relPath = storage.RelPath(job.DeviceID, job.TaskIdentifier, job.IsBinary)
	}

	storeCtx := ctx
	if w.storeTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, w.storeTimeout)
		defer cancel()
	}

	ref, err = backend.Store(storeCtx, content, relPath, job.StorageConfig)
	if err != nil {
		return "", "", err
	}
	return ref, fmt.Sprintf("stored %d bytes at %s", len(content), relPath), nil
}

func (w *Worker) publishOutcome(ctx context.Context, job queue.StorageJob, status, ref, logLine string, durationMs int64) {
	logLines, err := json.Marshal([]string{logLine})
	if err != nil {
		logLines = []byte("[]")
	}

	values := map[string]interface{}{
		"task_id":             job.TaskID,
		"task_identifier":     job.TaskIdentifier,
		"device_id":           strconv.FormatUint(uint64(job.DeviceID), 10),
		"storage_backend":     job.StorageBackend,
		"storage_ref":         ref,
		"status":              status,
		"timestamp":           time.Now().UTC().Format(time.RFC3339Nano),
		"log":                 string(logLines),
		"storage_duration_ms": strconv.FormatInt(durationMs, 10),
		"operation":           "store",
	}

	if err := w.results.Publish(ctx, values); err != nil {
		logger.Error("Failed to publish storage outcome", err, map[string]interface{}{
			"device_id":       job.DeviceID,
			"task_identifier": job.TaskIdentifier,
			"status":          status,
		})
	}
}
