package models

import (
	"time"
)

// Collection and storage outcome statuses
const (
	StatusSuccess      = "success"
	StatusFailed       = "failed"
	StatusFailure      = "failure" // wire-level alias used by plugins
	StatusMissedWindow = "missed_window"
)

// DeviceBackupResult is the persisted outcome of one collection attempt.
//
// TaskIdentifier is the idempotency key for the whole multi-stage job: at
// most one row ever exists per identifier no matter how many times the
// underlying message is delivered. OverallDurationMs is the only field
// mutated after creation (back-filled by the storage result ingestor).
type DeviceBackupResult struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Delivery-level id; may repeat across retries of the same job
	TaskID string `gorm:"size:64;index" json:"task_id"`

	// Unique per logical attempt
	TaskIdentifier string `gorm:"size:128;uniqueIndex;not null" json:"task_identifier"`

	DeviceID uint    `gorm:"index;not null" json:"device_id"`
	Device   *Device `gorm:"foreignKey:DeviceID" json:"-"`

	// success, failed or missed_window
	Status    string    `gorm:"size:16;index;not null" json:"status"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	// JSON-encoded list of log lines from the collector
	Log string `gorm:"type:text" json:"log"`

	InitiatedAt          *time.Time `json:"initiated_at,omitempty"`
	CollectionDurationMs *int64     `json:"collection_duration_ms,omitempty"`

	// Nullable until the storage stage completes
	OverallDurationMs *int64 `json:"overall_duration_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// StoredBackup is the persisted outcome of the storage stage, correlated
// 1:1 with a successful DeviceBackupResult via TaskIdentifier.
type StoredBackup struct {
	ID uint `gorm:"primaryKey" json:"id"`

	TaskID         string `gorm:"size:64;index" json:"task_id"`
	TaskIdentifier string `gorm:"size:128;uniqueIndex;not null" json:"task_identifier"`

	DeviceID uint    `gorm:"index;not null" json:"device_id"`
	Device   *Device `gorm:"foreignKey:DeviceID" json:"-"`

	StorageBackend string `gorm:"size:32;index;not null" json:"storage_backend"`

	// Opaque locator understood only by the backend that produced it
	StorageRef string `gorm:"size:256" json:"storage_ref"`

	Status    string    `gorm:"size:16;not null" json:"status"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	// JSON-encoded list of log lines from the storage worker
	Log string `gorm:"type:text" json:"log"`

	StorageDurationMs *int64 `json:"storage_duration_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
