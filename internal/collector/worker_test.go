package collector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/plugins"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/stream"
)

func newTestWorker(t *testing.T) (*Worker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	worker := NewWorker(
		plugins.Builtin(),
		lock.NewClient(rdb),
		stream.NewPublisher(rdb, "device:results"),
		60,
	)
	return worker, rdb
}

func marshalJob(t *testing.T, job queue.CollectionJob) []byte {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return body
}

func readOutcomes(t *testing.T, rdb *redis.Client) []redis.XMessage {
	t.Helper()
	entries, err := rdb.XRange(context.Background(), "device:results", "-", "+").Result()
	require.NoError(t, err)
	return entries
}

func TestHandlePublishesSuccessOutcome(t *testing.T) {
	worker, rdb := newTestWorker(t)

	job := queue.CollectionJob{
		DeviceID:       7,
		TaskIdentifier: "scheduled:7:2026-08-27T01:00:00Z",
		IP:             "10.0.0.7",
		BackupMethod:   "noop",
		Timeout:        30,
		InitiatedAt:    time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC),
	}

	require.NoError(t, worker.Handle(context.Background(), marshalJob(t, job)))

	entries := readOutcomes(t, rdb)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "scheduled:7:2026-08-27T01:00:00Z", values["task_identifier"])
	assert.Equal(t, "7", values["device_id"])
	assert.Equal(t, "success", values["status"])
	assert.Equal(t, "false", values["is_binary"])
	assert.NotEmpty(t, values["task_id"])
	assert.NotEmpty(t, values["collection_duration_ms"])

	var logLines []string
	require.NoError(t, json.Unmarshal([]byte(values["log"].(string)), &logLines))
	require.Len(t, logLines, 1)
	assert.Contains(t, logLines[0], "noop")
}

func TestHandleUnknownBackupMethodPublishesFailure(t *testing.T) {
	worker, rdb := newTestWorker(t)

	job := queue.CollectionJob{
		DeviceID:       3,
		TaskIdentifier: "manual:3:2026-08-27T01:00:00Z",
		BackupMethod:   "does_not_exist",
	}

	require.NoError(t, worker.Handle(context.Background(), marshalJob(t, job)))

	entries := readOutcomes(t, rdb)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Values["status"])
}

func TestHandleLockContentionFailsFast(t *testing.T) {
	worker, rdb := newTestWorker(t)
	ctx := context.Background()

	// Simulate another worker mid-collection on the same device
	other := lock.NewClientWithHolder(rdb, "other-worker")
	ok, err := other.Acquire(ctx, lock.DeviceKey(7), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	job := queue.CollectionJob{
		DeviceID:       7,
		TaskIdentifier: "scheduled:7:2026-08-27T02:00:00Z",
		BackupMethod:   "noop",
	}

	require.NoError(t, worker.Handle(ctx, marshalJob(t, job)))

	entries := readOutcomes(t, rdb)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Values["status"])

	// The contending worker's lock survives
	holder, err := other.CurrentHolder(ctx, lock.DeviceKey(7))
	require.NoError(t, err)
	assert.Equal(t, "other-worker", holder)
}

func TestHandleReleasesLockAfterCollection(t *testing.T) {
	worker, rdb := newTestWorker(t)
	ctx := context.Background()

	job := queue.CollectionJob{
		DeviceID:       9,
		TaskIdentifier: "scheduled:9:2026-08-27T01:00:00Z",
		BackupMethod:   "noop",
	}

	require.NoError(t, worker.Handle(ctx, marshalJob(t, job)))

	probe := lock.NewClientWithHolder(rdb, "probe")
	holder, err := probe.CurrentHolder(ctx, lock.DeviceKey(9))
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestHandleDropsMalformedEnvelope(t *testing.T) {
	worker, rdb := newTestWorker(t)

	require.NoError(t, worker.Handle(context.Background(), []byte("not json")))

	assert.Empty(t, readOutcomes(t, rdb))
}

func TestHandleBinaryPluginOutcome(t *testing.T) {
	worker, rdb := newTestWorker(t)

	job := queue.CollectionJob{
		DeviceID:       4,
		TaskIdentifier: "manual:4:2026-08-27T01:00:00Z",
		IP:             "10.0.0.4",
		BackupMethod:   "binary_dummy",
	}

	require.NoError(t, worker.Handle(context.Background(), marshalJob(t, job)))

	entries := readOutcomes(t, rdb)
	require.Len(t, entries, 1)
	assert.Equal(t, "success", entries[0].Values["status"])
	assert.Equal(t, "true", entries[0].Values["is_binary"])
	assert.NotEmpty(t, entries[0].Values["device_config"])
}
