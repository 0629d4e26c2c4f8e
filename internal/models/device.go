package models

import (
	"time"

	"gorm.io/datatypes"
)

// Device is a collection target. The pipeline reads devices but never
// mutates them; all writes happen through the admin surface.
type Device struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:128;not null" json:"name"`
	IPAddress string `gorm:"size:45;not null" json:"ip_address"`
	DNSName   string `gorm:"size:128" json:"dns_name,omitempty"`

	// Plugin key used to collect this device's configuration
	BackupMethod string `gorm:"size:64;not null" json:"backup_method"`

	// default:false so a row created with Enabled=false persists as
	// disabled; gorm omits zero values on insert, and a true column
	// default would silently flip them.
	Enabled bool `gorm:"default:false;not null" json:"enabled"`

	CollectionGroupID *uint            `json:"collection_group_id,omitempty"`
	CollectionGroup   *CollectionGroup `gorm:"foreignKey:CollectionGroupID" json:"collection_group,omitempty"`

	BackupScheduleID *uint           `json:"backup_schedule_id,omitempty"`
	BackupSchedule   *BackupSchedule `gorm:"foreignKey:BackupScheduleID" json:"backup_schedule,omitempty"`

	CredentialID *uint       `json:"credential_id,omitempty"`
	Credential   *Credential `gorm:"foreignKey:CredentialID" json:"-"`

	BackupLocationID *uint           `json:"backup_location_id,omitempty"`
	BackupLocation   *BackupLocation `gorm:"foreignKey:BackupLocationID" json:"backup_location,omitempty"`

	// Maintained by the admin surface, not by the pipeline
	LastBackupTime   *time.Time `json:"last_backup_time,omitempty"`
	LastBackupStatus string     `gorm:"size:32" json:"last_backup_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CollectionGroup maps devices to a dedicated collector queue
type CollectionGroup struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;not null;uniqueIndex" json:"name"`

	// RoutingID forms the queue name: collector.group.<routing_id>
	RoutingID string `gorm:"size:64;not null" json:"routing_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credential holds connection secrets for a device as opaque JSON
type Credential struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"size:128;not null" json:"name"`
	CredentialType string            `gorm:"size:64;not null" json:"credential_type"`
	Data           datatypes.JSONMap `gorm:"type:json" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BackupLocation configures a storage backend for a device's artifacts
type BackupLocation struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;not null" json:"name"`

	// LocationType is the storage backend key (filesystem, fs, git)
	LocationType string            `gorm:"size:64;not null" json:"location_type"`
	Config       datatypes.JSONMap `gorm:"type:json" json:"config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
