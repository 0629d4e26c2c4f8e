// Package ingest persists outcome records from the results streams into
// the database. Ingestion is the only write path for backup results and
// is idempotent on task_identifier, so redelivered stream entries never
// produce duplicate rows.
package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/logger"
)

const (
	readBatch = 16
	readBlock = 5 * time.Second
)

// handler processes one stream message. A nil error means the message is
// done and must be acknowledged; a non-nil error leaves it pending for
// redelivery or operator recovery.
type handler interface {
	handle(ctx context.Context, msg stream.Message) error
	stage() string
}

// runLoop drives a consumer-group read loop until ctx is cancelled
func runLoop(ctx context.Context, consumer *stream.Consumer, h handler) error {
	if err := consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	logger.Info("Ingestor running", map[string]interface{}{
		"stage": h.stage(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := consumer.Read(ctx, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("Stream read failed", err, map[string]interface{}{
				"stage": h.stage(),
			})
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			if err := h.handle(ctx, msg); err != nil {
				logger.Error("Ingest failed, leaving message pending", err, map[string]interface{}{
					"stage":      h.stage(),
					"message_id": msg.ID,
				})
				continue
			}
			if err := consumer.Ack(ctx, msg.ID); err != nil {
				logger.Error("Stream ack failed", err, map[string]interface{}{
					"stage":      h.stage(),
					"message_id": msg.ID,
				})
			}
		}
	}
}

// parseUint reads a numeric stream field, tolerating the empty string
func parseUint(s string) (uint, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

func parseInt64(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseTime reads an RFC3339 stream field, falling back to now
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
