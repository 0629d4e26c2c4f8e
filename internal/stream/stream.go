// Package stream implements the delivery log: an append-only Redis Stream
// read through a consumer group with explicit acknowledgment, giving
// at-least-once delivery of worker outcomes to the ingestors.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one delivery-log entry as read by a consumer group member
type Message struct {
	ID     string
	Values map[string]string
}

// Get returns a field value, or empty string when absent
func (m Message) Get(field string) string {
	return m.Values[field]
}

// Publisher appends outcome records to a stream
type Publisher struct {
	rdb    *redis.Client
	stream string
}

// NewPublisher creates a publisher for the named stream
func NewPublisher(rdb *redis.Client, stream string) *Publisher {
	return &Publisher{rdb: rdb, stream: stream}
}

// Stream returns the stream name this publisher appends to
func (p *Publisher) Stream() string {
	return p.stream
}

// Publish appends a record to the stream
func (p *Publisher) Publish(ctx context.Context, values map[string]interface{}) error {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("stream publish %s: %w", p.stream, err)
	}
	return nil
}

// Consumer reads a stream through a named consumer group
type Consumer struct {
	rdb    *redis.Client
	stream string
	group  string
	name   string
}

// NewConsumer creates a consumer group member for the named stream
func NewConsumer(rdb *redis.Client, stream, group, name string) *Consumer {
	return &Consumer{rdb: rdb, stream: stream, group: group, name: name}
}

// EnsureGroup creates the consumer group, tolerating prior creation
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("stream group create %s/%s: %w", c.stream, c.group, err)
	}
	return nil
}

// Read blocks up to the given duration for new messages. A timeout
// returns an empty slice, not an error.
func (c *Consumer) Read(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream read %s/%s: %w", c.stream, c.group, err)
	}

	var messages []Message
	for _, s := range res {
		for _, m := range s.Messages {
			values := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if str, ok := v.(string); ok {
					values[k] = str
				} else {
					values[k] = fmt.Sprint(v)
				}
			}
			messages = append(messages, Message{ID: m.ID, Values: values})
		}
	}
	return messages, nil
}

// Ack acknowledges a processed message so the group will not redeliver it
func (c *Consumer) Ack(ctx context.Context, id string) error {
	if err := c.rdb.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		return fmt.Errorf("stream ack %s/%s: %w", c.stream, c.group, err)
	}
	return nil
}
