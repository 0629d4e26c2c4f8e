package events

// PublishBackupDispatched publishes a collection job enqueue event
func PublishBackupDispatched(deviceID uint, taskIdentifier, trigger, queue string) {
	GetEventBus().Publish(Event{
		Type:           EventBackupDispatched,
		Source:         "scheduler",
		DeviceID:       deviceID,
		TaskIdentifier: taskIdentifier,
		Data: map[string]interface{}{
			"trigger": trigger,
			"queue":   queue,
		},
	})
}

// PublishMissedWindow publishes a missed recurrence event
func PublishMissedWindow(deviceID uint, taskIdentifier string, scheduledFor string) {
	GetEventBus().Publish(Event{
		Type:           EventMissedWindow,
		Source:         "scheduler",
		DeviceID:       deviceID,
		TaskIdentifier: taskIdentifier,
		Data: map[string]interface{}{
			"scheduled_for": scheduledFor,
		},
	})
}

// PublishCollectionRecorded publishes a persisted collection outcome event
func PublishCollectionRecorded(deviceID uint, taskIdentifier, status string, durationMs int64) {
	GetEventBus().Publish(Event{
		Type:           EventCollectionRecorded,
		Source:         "ingestor",
		DeviceID:       deviceID,
		TaskIdentifier: taskIdentifier,
		Data: map[string]interface{}{
			"status":      status,
			"duration_ms": durationMs,
		},
	})
}

// PublishStorageRecorded publishes a persisted storage outcome event
func PublishStorageRecorded(deviceID uint, taskIdentifier, backend, status, storageRef string) {
	GetEventBus().Publish(Event{
		Type:           EventStorageRecorded,
		Source:         "ingestor",
		DeviceID:       deviceID,
		TaskIdentifier: taskIdentifier,
		Data: map[string]interface{}{
			"backend":     backend,
			"status":      status,
			"storage_ref": storageRef,
		},
	})
}
