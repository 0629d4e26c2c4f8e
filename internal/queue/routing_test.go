package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slinky-software/devicevault/internal/models"
)

func TestCollectionQueueNameWithGroup(t *testing.T) {
	group := &models.CollectionGroup{Name: "Branch Office", RoutingID: "branch-office"}
	assert.Equal(t, "collector.group.branch-office", CollectionQueueName(group))
}

func TestCollectionQueueNameWithoutGroup(t *testing.T) {
	assert.Equal(t, DefaultCollectionQueue, CollectionQueueName(nil))
}

func TestCollectionQueueNameEmptyRoutingID(t *testing.T) {
	group := &models.CollectionGroup{Name: "Unrouted"}
	assert.Equal(t, DefaultCollectionQueue, CollectionQueueName(group))
}

func TestStorageQueueName(t *testing.T) {
	assert.Equal(t, "storage.git", StorageQueueName("git"))
	assert.Equal(t, "storage.filesystem", StorageQueueName("filesystem"))
	assert.Equal(t, "storage", StorageQueueName(""))
}
