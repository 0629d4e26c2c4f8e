package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/slinky-software/devicevault/pkg/logger"
)

// InfluxDBConfig holds InfluxDB connection configuration
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxDBEventStorage mirrors pipeline events into InfluxDB for
// time-series analysis of backup activity.
type InfluxDBEventStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
}

// NewInfluxDBEventStorage connects to InfluxDB and verifies the connection
func NewInfluxDBEventStorage(config InfluxDBConfig) (*InfluxDBEventStorage, error) {
	client := influxdb2.NewClient(config.URL, config.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	logger.Info("InfluxDB connection established", map[string]interface{}{
		"url":    config.URL,
		"org":    config.Org,
		"bucket": config.Bucket,
	})

	return &InfluxDBEventStorage{
		client:   client,
		writeAPI: client.WriteAPI(config.Org, config.Bucket),
		queryAPI: client.QueryAPI(config.Org),
		bucket:   config.Bucket,
	}, nil
}

// Store writes an event to InfluxDB as a time-series point
func (s *InfluxDBEventStorage) Store(event Event) error {
	fields := make(map[string]interface{}, len(event.Data))
	for k, v := range event.Data {
		fields[k] = v
	}
	if len(fields) == 0 {
		// InfluxDB rejects points without fields
		fields["_present"] = true
	}

	p := influxdb2.NewPoint(
		"pipeline_event",
		map[string]string{
			"event_id":        event.ID,
			"event_type":      string(event.Type),
			"source":          event.Source,
			"device_id":       strconv.FormatUint(uint64(event.DeviceID), 10),
			"task_identifier": event.TaskIdentifier,
		},
		fields,
		event.Timestamp,
	)

	// Write point (non-blocking)
	s.writeAPI.WritePoint(p)

	return nil
}

// Query retrieves events from InfluxDB based on filters
func (s *InfluxDBEventStorage) Query(filters EventFilters) ([]Event, error) {
	ctx := context.Background()

	result, err := s.queryAPI.Query(ctx, s.buildFluxQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("failed to query InfluxDB: %w", err)
	}

	var eventsList []Event
	for result.Next() {
		record := result.Record()

		event := Event{
			ID:             stringValue(record.ValueByKey("event_id")),
			Type:           EventType(stringValue(record.ValueByKey("event_type"))),
			Timestamp:      record.Time(),
			Source:         stringValue(record.ValueByKey("source")),
			TaskIdentifier: stringValue(record.ValueByKey("task_identifier")),
			Data:           make(map[string]interface{}),
		}
		if id, err := strconv.ParseUint(stringValue(record.ValueByKey("device_id")), 10, 64); err == nil {
			event.DeviceID = uint(id)
		}

		for k, v := range record.Values() {
			switch k {
			case "_time", "_measurement", "event_id", "event_type", "source", "device_id", "task_identifier":
			default:
				event.Data[k] = v
			}
		}

		eventsList = append(eventsList, event)

		if filters.Limit > 0 && len(eventsList) >= filters.Limit {
			break
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	return eventsList, nil
}

func (s *InfluxDBEventStorage) buildFluxQuery(filters EventFilters) string {
	query := fmt.Sprintf(`from(bucket: "%s")`, s.bucket)

	if !filters.StartTime.IsZero() {
		query += fmt.Sprintf(`
  |> range(start: %s`, filters.StartTime.Format(time.RFC3339))
		if !filters.EndTime.IsZero() {
			query += fmt.Sprintf(`, stop: %s`, filters.EndTime.Format(time.RFC3339))
		}
		query += ")"
	} else {
		query += `
  |> range(start: -24h)`
	}

	query += `
  |> filter(fn: (r) => r._measurement == "pipeline_event")`

	if len(filters.Types) > 0 {
		query += `
  |> filter(fn: (r) => `
		for i, eventType := range filters.Types {
			if i > 0 {
				query += " or "
			}
			query += fmt.Sprintf(`r.event_type == "%s"`, eventType)
		}
		query += ")"
	}

	if filters.DeviceID != 0 {
		query += fmt.Sprintf(`
  |> filter(fn: (r) => r.device_id == "%d")`, filters.DeviceID)
	}

	if filters.TaskIdentifier != "" {
		query += fmt.Sprintf(`
  |> filter(fn: (r) => r.task_identifier == "%s")`, filters.TaskIdentifier)
	}

	query += `
  |> sort(columns: ["_time"], desc: true)`

	if filters.Limit > 0 {
		query += fmt.Sprintf(`
  |> limit(n: %d)`, filters.Limit)
	}

	return query
}

// Flush ensures all pending writes are sent to InfluxDB
func (s *InfluxDBEventStorage) Flush() {
	s.writeAPI.Flush()
}

// Close flushes pending writes and closes the client
func (s *InfluxDBEventStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
