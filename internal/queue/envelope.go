package queue

import (
	"time"
)

// CollectionJob is the envelope dispatched to collection workers.
// TaskIdentifier is the idempotency key for the whole multi-stage job and
// is unique per logical attempt, not per delivery.
type CollectionJob struct {
	DeviceID       uint                   `json:"device_id"`
	TaskIdentifier string                 `json:"task_identifier"`
	IP             string                 `json:"ip"`
	Credentials    map[string]interface{} `json:"credentials"`
	BackupMethod   string                 `json:"backup_method"`
	PluginParams   map[string]interface{} `json:"plugin_params"`
	Timeout        int                    `json:"timeout"`
	InitiatedAt    time.Time              `json:"initiated_at"`
}

// StorageJob is the envelope dispatched to storage workers after a
// successful collection. It carries the same TaskIdentifier so the
// storage stage stays correlated with its originating collection.
type StorageJob struct {
	TaskID         string                 `json:"task_id"`
	TaskIdentifier string                 `json:"task_identifier"`
	DeviceID       uint                   `json:"device_id"`
	StorageBackend string                 `json:"storage_backend"`
	StorageConfig  map[string]interface{} `json:"storage_config"`
	DeviceConfig   string                 `json:"device_config"`
	IsBinary       bool                   `json:"is_binary"`
	StorageRelPath string                 `json:"storage_rel_path,omitempty"`
}
