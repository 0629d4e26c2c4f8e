package repository

import (
	"github.com/slinky-software/devicevault/internal/models"
	"gorm.io/gorm"
)

// DeviceRepository handles database reads for devices. The pipeline never
// writes device rows.
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FindByID finds a device by id with its pipeline associations preloaded
func (r *DeviceRepository) FindByID(id uint) (*models.Device, error) {
	var device models.Device
	err := r.db.
		Preload("Credential").
		Preload("CollectionGroup").
		Preload("BackupLocation").
		Preload("BackupSchedule").
		First(&device, id).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// FindEnabledBySchedule returns all enabled devices attached to a schedule
func (r *DeviceRepository) FindEnabledBySchedule(scheduleID uint) ([]models.Device, error) {
	var devices []models.Device
	err := r.db.
		Preload("Credential").
		Preload("CollectionGroup").
		Preload("BackupLocation").
		Where("backup_schedule_id = ? AND enabled = ?", scheduleID, true).
		Find(&devices).Error
	return devices, err
}

// Exists reports whether a device row exists
func (r *DeviceRepository) Exists(id uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Device{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
