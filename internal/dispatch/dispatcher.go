// Package dispatch builds collection jobs and enqueues them on the
// durable queue. Scheduled, catch-up and manual triggers all funnel
// through the same path so routing and envelope shape never diverge.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/monitoring"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// Trigger sources for collection jobs
const (
	TriggerScheduled = "scheduled"
	TriggerCatchup   = "scheduled_catchup"
	TriggerManual    = "manual"
)

// Publisher enqueues a message body on a named queue
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// Dispatcher builds and enqueues collection jobs for devices
type Dispatcher struct {
	publisher      Publisher
	collectTimeout int
}

// NewDispatcher creates a dispatcher. collectTimeoutSeconds is stamped
// onto every job as the worker-side soft timeout.
func NewDispatcher(publisher Publisher, collectTimeoutSeconds int) *Dispatcher {
	return &Dispatcher{
		publisher:      publisher,
		collectTimeout: collectTimeoutSeconds,
	}
}

// TaskIdentifier builds the idempotency key for one logical backup
// attempt. Retried deliveries of the same job carry the same identifier.
func TaskIdentifier(trigger string, deviceID uint, at time.Time) string {
	return fmt.Sprintf("%s:%d:%s", trigger, deviceID, at.UTC().Format(time.RFC3339Nano))
}

// Dispatch enqueues a collection job for the device using the current
// time as the attempt timestamp. Returns the job's task identifier.
func (d *Dispatcher) Dispatch(ctx context.Context, device *models.Device, trigger string) (string, error) {
	return d.DispatchAt(ctx, device, trigger, time.Now().UTC())
}

// DispatchAt enqueues a collection job with an explicit attempt time
func (d *Dispatcher) DispatchAt(ctx context.Context, device *models.Device, trigger string, at time.Time) (string, error) {
	taskIdentifier := TaskIdentifier(trigger, device.ID, at)

	credentials := map[string]interface{}{}
	if device.Credential != nil && device.Credential.Data != nil {
		credentials = map[string]interface{}(device.Credential.Data)
	}

	params := map[string]interface{}{}
	if device.DNSName != "" {
		params["dns_name"] = device.DNSName
	}

	job := queue.CollectionJob{
		DeviceID:       device.ID,
		TaskIdentifier: taskIdentifier,
		IP:             device.IPAddress,
		Credentials:    credentials,
		BackupMethod:   device.BackupMethod,
		PluginParams:   params,
		Timeout:        d.collectTimeout,
		InitiatedAt:    at.UTC(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("dispatch device %d: %w", device.ID, err)
	}

	queueName := queue.CollectionQueueName(device.CollectionGroup)
	if err := d.publisher.Publish(ctx, queueName, body); err != nil {
		return "", fmt.Errorf("dispatch device %d: %w", device.ID, err)
	}

	monitoring.DispatchedJobs.WithLabelValues(trigger).Inc()
	events.PublishBackupDispatched(device.ID, taskIdentifier, trigger, queueName)

	logger.Info("Collection job dispatched", map[string]interface{}{
		"device_id":       device.ID,
		"task_identifier": taskIdentifier,
		"trigger":         trigger,
		"queue":           queueName,
	})

	return taskIdentifier, nil
}
