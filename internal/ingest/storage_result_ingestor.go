package ingest

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/logger"
)

const stageStorage = "storage"

// StorageResultIngestor persists storage outcome records and back-fills
// the overall pipeline duration onto the originating collection result.
type StorageResultIngestor struct {
	consumer *stream.Consumer
	results  *repository.ResultRepository
}

// NewStorageResultIngestor creates the storage-stage ingestor
func NewStorageResultIngestor(consumer *stream.Consumer, results *repository.ResultRepository) *StorageResultIngestor {
	return &StorageResultIngestor{
		consumer: consumer,
		results:  results,
	}
}

// Run blocks consuming the storage results stream until ctx is cancelled
func (i *StorageResultIngestor) Run(ctx context.Context) error {
	return runLoop(ctx, i.consumer, i)
}

func (i *StorageResultIngestor) stage() string { return stageStorage }

func (i *StorageResultIngestor) handle(ctx context.Context, msg stream.Message) error {
	if op := msg.Get("operation"); op != "store" {
		// Reads and future operations pass through the stream too; only
		// store outcomes are persisted.
		monitoring.IngestDropped.WithLabelValues(stageStorage, "unhandled_operation").Inc()
		return nil
	}

	taskIdentifier := msg.Get("task_identifier")
	deviceID, okID := parseUint(msg.Get("device_id"))
	if taskIdentifier == "" || !okID {
		monitoring.IngestDropped.WithLabelValues(stageStorage, "malformed").Inc()
		logger.Warn("Dropping malformed storage record", map[string]interface{}{
			"message_id": msg.ID,
		})
		return nil
	}

	exists, err := i.results.StoredBackupExists(taskIdentifier)
	if err != nil {
		return err
	}
	if exists {
		monitoring.IngestDuplicates.WithLabelValues(stageStorage).Inc()
		logger.Debug("Skipping redelivered storage record", map[string]interface{}{
			"task_identifier": taskIdentifier,
		})
		return nil
	}

	status := msg.Get("status")
	if status == models.StatusFailure {
		status = models.StatusFailed
	}
	completedAt := parseTime(msg.Get("timestamp"))

	stored := &models.StoredBackup{
		TaskID:         msg.Get("task_id"),
		TaskIdentifier: taskIdentifier,
		DeviceID:       deviceID,
		StorageBackend: msg.Get("storage_backend"),
		StorageRef:     msg.Get("storage_ref"),
		Status:         status,
		Timestamp:      completedAt,
		Log:            msg.Get("log"),
	}
	if ms, ok := parseInt64(msg.Get("storage_duration_ms")); ok {
		stored.StorageDurationMs = &ms
	}

	if err := i.results.CreateStoredBackup(stored); err != nil {
		return err
	}

	monitoring.IngestedResults.WithLabelValues(stageStorage).Inc()
	events.PublishStorageRecorded(deviceID, taskIdentifier, stored.StorageBackend, status, stored.StorageRef)

	logger.Info("Storage outcome recorded", map[string]interface{}{
		"device_id":       deviceID,
		"task_identifier": taskIdentifier,
		"backend":         stored.StorageBackend,
		"status":          status,
	})

	if status == models.StatusSuccess {
		i.backfillOverallDuration(taskIdentifier, completedAt)
	}

	return nil
}

// backfillOverallDuration sets overall_duration_ms on the originating
// collection result: storage completion minus collection initiation. This
// is the only mutation a result row ever receives after creation.
func (i *StorageResultIngestor) backfillOverallDuration(taskIdentifier string, completedAt time.Time) {
	result, err := i.results.FindResultByTaskIdentifier(taskIdentifier)
	if err != nil {
		// A storage outcome without its collection row is a quiet skip;
		// anything else is a real lookup failure
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to load result for duration back-fill", err, map[string]interface{}{
				"task_identifier": taskIdentifier,
			})
		}
		return
	}
	if result.InitiatedAt == nil {
		return
	}

	durationMs := completedAt.Sub(*result.InitiatedAt).Milliseconds()
	if durationMs < 0 {
		return
	}

	if err := i.results.SetOverallDuration(taskIdentifier, durationMs); err != nil {
		logger.Error("Failed to back-fill overall duration", err, map[string]interface{}{
			"task_identifier": taskIdentifier,
		})
	}
}
