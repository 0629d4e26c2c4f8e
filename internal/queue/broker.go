// Package queue implements the durable job queue over AMQP. Jobs are
// published persistently to durable queues addressed by routing key and
// consumed with manual acknowledgment; failed deliveries are republished
// with backoff a bounded number of times before being dropped.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/slinky-software/devicevault/pkg/logger"
)

const retryCountHeader = "x-retry-count"

// Handler processes one job body. A returned error requests a retry;
// handlers that have already recorded a terminal outcome return nil.
type Handler func(ctx context.Context, body []byte) error

// Broker is an AMQP connection shared by publishers and consumers
type Broker struct {
	url        string
	maxRetries int
	prefetch   int

	mu      sync.Mutex
	conn    *amqp.Connection
	pubChan *amqp.Channel
}

// Dial connects to the AMQP broker
func Dial(url string, prefetch, maxRetries int) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker channel: %w", err)
	}

	return &Broker{
		url:        url,
		maxRetries: maxRetries,
		prefetch:   prefetch,
		conn:       conn,
		pubChan:    ch,
	}, nil
}

// Close shuts down the broker connection
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Publish sends a persistent message to a durable queue
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	return b.publish(ctx, queueName, body, 0)
}

func (b *Broker) publish(ctx context.Context, queueName string, body []byte, retryCount int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.pubChan.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queueName, err)
	}

	err := b.pubChan.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		Headers:      amqp.Table{retryCountHeader: retryCount},
	})
	if err != nil {
		return fmt.Errorf("queue publish %s: %w", queueName, err)
	}
	return nil
}

// Consume processes a durable queue until the context is cancelled. Each
// delivery is acknowledged after handling; handler errors trigger a
// bounded republish with exponential backoff, then the message is dropped
// with a log entry so it cannot poison the queue.
func (b *Broker) Consume(ctx context.Context, queueName string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer channel %s: %w", queueName, err)
	}
	defer ch.Close()

	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		return fmt.Errorf("consumer qos %s: %w", queueName, err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queueName, err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	logger.Info("Consuming queue", map[string]interface{}{
		"queue":    queueName,
		"prefetch": b.prefetch,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consume %s: delivery channel closed", queueName)
			}
			b.handleDelivery(ctx, queueName, d, handler)
		}
	}
}

func (b *Broker) handleDelivery(ctx context.Context, queueName string, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("Failed to ack delivery", ackErr, map[string]interface{}{
				"queue": queueName,
			})
		}
		return
	}

	retryCount := deliveryRetryCount(d)
	if int(retryCount) >= b.maxRetries {
		logger.Error("Dropping job after retry exhaustion", err, map[string]interface{}{
			"queue":   queueName,
			"retries": retryCount,
		})
		_ = d.Ack(false)
		return
	}

	// Backoff grows per attempt: 1s, 2s, 4s...
	backoff := time.Duration(1<<retryCount) * time.Second
	logger.Warn("Job failed, republishing with backoff", map[string]interface{}{
		"queue":   queueName,
		"retry":   retryCount + 1,
		"backoff": backoff.String(),
		"error":   err.Error(),
	})

	select {
	case <-ctx.Done():
		// Requeue for another consumer instead of losing the delivery
		_ = d.Nack(false, true)
		return
	case <-time.After(backoff):
	}

	if pubErr := b.publish(ctx, queueName, d.Body, retryCount+1); pubErr != nil {
		logger.Error("Failed to republish job, requeueing original", pubErr, map[string]interface{}{
			"queue": queueName,
		})
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func deliveryRetryCount(d amqp.Delivery) int32 {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers[retryCountHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 0
	}
}
