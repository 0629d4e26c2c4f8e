package events

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/slinky-software/devicevault/internal/models"
)

// DatabaseEventStorage stores pipeline events in the relational database
type DatabaseEventStorage struct {
	db *gorm.DB
}

// NewDatabaseEventStorage creates a new database event storage
func NewDatabaseEventStorage(db *gorm.DB) *DatabaseEventStorage {
	return &DatabaseEventStorage{db: db}
}

// Store saves an event to the database
func (s *DatabaseEventStorage) Store(event Event) error {
	record := &models.PipelineEvent{
		ID:             event.ID,
		Type:           string(event.Type),
		Timestamp:      event.Timestamp,
		Source:         event.Source,
		DeviceID:       event.DeviceID,
		TaskIdentifier: event.TaskIdentifier,
		Data:           datatypes.JSONMap(event.Data),
	}

	return s.db.Create(record).Error
}

// Query retrieves events based on filters
func (s *DatabaseEventStorage) Query(filters EventFilters) ([]Event, error) {
	query := s.db.Model(&models.PipelineEvent{})

	if len(filters.Types) > 0 {
		types := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			types[i] = string(t)
		}
		query = query.Where("type IN ?", types)
	}

	if filters.DeviceID != 0 {
		query = query.Where("device_id = ?", filters.DeviceID)
	}

	if filters.TaskIdentifier != "" {
		query = query.Where("task_identifier = ?", filters.TaskIdentifier)
	}

	if !filters.StartTime.IsZero() {
		query = query.Where("timestamp >= ?", filters.StartTime)
	}

	if !filters.EndTime.IsZero() {
		query = query.Where("timestamp <= ?", filters.EndTime)
	}

	query = query.Order("timestamp DESC")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(1000)
	}

	var records []models.PipelineEvent
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	events := make([]Event, len(records))
	for i, rec := range records {
		data := map[string]interface{}(rec.Data)
		if data == nil {
			data = make(map[string]interface{})
		}

		events[i] = Event{
			ID:             rec.ID,
			Type:           EventType(rec.Type),
			Timestamp:      rec.Timestamp,
			Source:         rec.Source,
			DeviceID:       rec.DeviceID,
			TaskIdentifier: rec.TaskIdentifier,
			Data:           data,
		}
	}

	return events, nil
}
