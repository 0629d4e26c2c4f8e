package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPublishReadAck(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	pub := NewPublisher(rdb, "test:results")
	consumer := NewConsumer(rdb, "test:results", "test-group", "consumer-1")

	require.NoError(t, consumer.EnsureGroup(ctx))

	require.NoError(t, pub.Publish(ctx, map[string]interface{}{
		"task_identifier": "scheduled:1:2026-08-27T00:00:00Z",
		"status":          "success",
	}))

	messages, err := consumer.Read(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "scheduled:1:2026-08-27T00:00:00Z", messages[0].Get("task_identifier"))
	assert.Equal(t, "success", messages[0].Get("status"))
	assert.Empty(t, messages[0].Get("missing_field"))

	require.NoError(t, consumer.Ack(ctx, messages[0].ID))
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	consumer := NewConsumer(rdb, "test:results", "test-group", "consumer-1")
	require.NoError(t, consumer.EnsureGroup(ctx))
	require.NoError(t, consumer.EnsureGroup(ctx))
}

func TestReadDeliversEachMessageOncePerGroup(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	pub := NewPublisher(rdb, "test:results")
	consumer := NewConsumer(rdb, "test:results", "test-group", "consumer-1")
	require.NoError(t, consumer.EnsureGroup(ctx))

	require.NoError(t, pub.Publish(ctx, map[string]interface{}{"n": "1"}))
	require.NoError(t, pub.Publish(ctx, map[string]interface{}{"n": "2"}))

	first, err := consumer.Read(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	// ">" only returns entries never delivered to this group
	second, err := consumer.Read(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestStreamName(t *testing.T) {
	pub := NewPublisher(nil, "device:results")
	assert.Equal(t, "device:results", pub.Stream())
}
