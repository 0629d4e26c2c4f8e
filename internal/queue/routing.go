package queue

import (
	"fmt"

	"github.com/slinky-software/devicevault/internal/models"
)

// DefaultCollectionQueue receives jobs for devices without a collection group
const DefaultCollectionQueue = "collector.default"

// CollectionQueueName returns the routing key for a device's collection
// jobs: a group-specific queue when the device belongs to a collection
// group, otherwise the default queue.
func CollectionQueueName(group *models.CollectionGroup) string {
	if group == nil || group.RoutingID == "" {
		return DefaultCollectionQueue
	}
	return fmt.Sprintf("collector.group.%s", group.RoutingID)
}

// StorageQueueName returns the routing key for a storage backend's jobs
func StorageQueueName(backend string) string {
	if backend == "" {
		return "storage"
	}
	return fmt.Sprintf("storage.%s", backend)
}
