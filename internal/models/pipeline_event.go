package models

import (
	"time"

	"gorm.io/datatypes"
)

// Pipeline event types
const (
	EventBackupDispatched   = "backup.dispatched"
	EventCollectionRecorded = "collection.recorded"
	EventStorageRecorded    = "storage.recorded"
	EventMissedWindow       = "backup.missed_window"
)

// PipelineEvent is an observability record of pipeline activity, stored in
// the database and optionally mirrored to InfluxDB.
type PipelineEvent struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	Type           string            `gorm:"size:64;index;not null" json:"type"`
	Timestamp      time.Time         `gorm:"index" json:"timestamp"`
	Source         string            `gorm:"size:64" json:"source"`
	DeviceID       uint              `gorm:"index" json:"device_id,omitempty"`
	TaskIdentifier string            `gorm:"size:128;index" json:"task_identifier,omitempty"`
	Data           datatypes.JSONMap `gorm:"type:json" json:"data,omitempty"`
}
