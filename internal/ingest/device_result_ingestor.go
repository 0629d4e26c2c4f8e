package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/logger"
)

const stageDevice = "device"

// Publisher enqueues a message body on a named queue
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// DeviceResultIngestor persists collection outcome records and chains a
// storage job for every successful collection whose device has a backup
// location configured.
type DeviceResultIngestor struct {
	consumer  *stream.Consumer
	devices   *repository.DeviceRepository
	results   *repository.ResultRepository
	publisher Publisher
}

// NewDeviceResultIngestor creates the collection-stage ingestor
func NewDeviceResultIngestor(
	consumer *stream.Consumer,
	devices *repository.DeviceRepository,
	results *repository.ResultRepository,
	publisher Publisher,
) *DeviceResultIngestor {
	return &DeviceResultIngestor{
		consumer:  consumer,
		devices:   devices,
		results:   results,
		publisher: publisher,
	}
}

// Run blocks consuming the device results stream until ctx is cancelled
func (i *DeviceResultIngestor) Run(ctx context.Context) error {
	return runLoop(ctx, i.consumer, i)
}

func (i *DeviceResultIngestor) stage() string { return stageDevice }

func (i *DeviceResultIngestor) handle(ctx context.Context, msg stream.Message) error {
	taskIdentifier := msg.Get("task_identifier")
	deviceID, okID := parseUint(msg.Get("device_id"))
	if taskIdentifier == "" || !okID {
		monitoring.IngestDropped.WithLabelValues(stageDevice, "malformed").Inc()
		logger.Warn("Dropping malformed outcome record", map[string]interface{}{
			"message_id": msg.ID,
		})
		return nil
	}

	exists, err := i.results.ResultExists(taskIdentifier)
	if err != nil {
		return err
	}
	if exists {
		monitoring.IngestDuplicates.WithLabelValues(stageDevice).Inc()
		logger.Debug("Skipping redelivered outcome record", map[string]interface{}{
			"task_identifier": taskIdentifier,
		})
		return nil
	}

	known, err := i.devices.Exists(deviceID)
	if err != nil {
		return err
	}
	if !known {
		// The device was deleted between dispatch and ingestion. The
		// record cannot be attributed, so it is dropped rather than
		// poisoning the stream.
		monitoring.IngestDropped.WithLabelValues(stageDevice, "unknown_device").Inc()
		logger.Warn("Dropping outcome record for unknown device", map[string]interface{}{
			"device_id":       deviceID,
			"task_identifier": taskIdentifier,
		})
		return nil
	}

	status := msg.Get("status")
	if status == models.StatusFailure {
		status = models.StatusFailed
	}

	result := &models.DeviceBackupResult{
		TaskID:         msg.Get("task_id"),
		TaskIdentifier: taskIdentifier,
		DeviceID:       deviceID,
		Status:         status,
		Timestamp:      parseTime(msg.Get("timestamp")),
		Log:            msg.Get("log"),
	}
	if t := msg.Get("initiated_at"); t != "" {
		initiated := parseTime(t)
		result.InitiatedAt = &initiated
	}
	if ms, ok := parseInt64(msg.Get("collection_duration_ms")); ok {
		result.CollectionDurationMs = &ms
	}

	if err := i.results.CreateResult(result); err != nil {
		return err
	}

	monitoring.IngestedResults.WithLabelValues(stageDevice).Inc()

	durationMs := int64(0)
	if result.CollectionDurationMs != nil {
		durationMs = *result.CollectionDurationMs
	}
	events.PublishCollectionRecorded(deviceID, taskIdentifier, status, durationMs)

	logger.Info("Collection outcome recorded", map[string]interface{}{
		"device_id":       deviceID,
		"task_identifier": taskIdentifier,
		"status":          status,
	})

	if status == models.StatusSuccess {
		if err := i.chainStorageJob(ctx, msg, deviceID, taskIdentifier); err != nil {
			// The result row is already committed; a failed chain is
			// logged for operator follow-up instead of blocking the ack
			// and re-ingesting the record.
			logger.Error("Failed to chain storage job", err, map[string]interface{}{
				"device_id":       deviceID,
				"task_identifier": taskIdentifier,
			})
		}
	}

	return nil
}

// chainStorageJob enqueues the storage stage for a successful collection.
// Devices without a backup location skip storage by design.
func (i *DeviceResultIngestor) chainStorageJob(ctx context.Context, msg stream.Message, deviceID uint, taskIdentifier string) error {
	device, err := i.devices.FindByID(deviceID)
	if err != nil {
		return err
	}
	if device.BackupLocation == nil {
		logger.Info("Device has no backup location, skipping storage stage", map[string]interface{}{
			"device_id":       deviceID,
			"task_identifier": taskIdentifier,
		})
		return nil
	}

	storageConfig := map[string]interface{}{}
	if device.BackupLocation.Config != nil {
		storageConfig = map[string]interface{}(device.BackupLocation.Config)
	}

	job := queue.StorageJob{
		TaskID:         msg.Get("task_id"),
		TaskIdentifier: taskIdentifier,
		DeviceID:       deviceID,
		StorageBackend: device.BackupLocation.LocationType,
		StorageConfig:  storageConfig,
		DeviceConfig:   msg.Get("device_config"),
		IsBinary:       msg.Get("is_binary") == "true",
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal storage job: %w", err)
	}

	return i.publisher.Publish(ctx, queue.StorageQueueName(job.StorageBackend), body)
}
