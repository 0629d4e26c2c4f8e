package repository

import (
	"github.com/slinky-software/devicevault/internal/models"
	"gorm.io/gorm"
)

// ResultRepository handles DeviceBackupResult and StoredBackup rows.
// Only the two ingestors write through it.
type ResultRepository struct {
	db *gorm.DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// ResultExists reports whether a DeviceBackupResult exists for the
// idempotency key
func (r *ResultRepository) ResultExists(taskIdentifier string) (bool, error) {
	var count int64
	err := r.db.Model(&models.DeviceBackupResult{}).
		Where("task_identifier = ?", taskIdentifier).
		Count(&count).Error
	return count > 0, err
}

// CreateResult persists a collection outcome
func (r *ResultRepository) CreateResult(result *models.DeviceBackupResult) error {
	return r.db.Create(result).Error
}

// FindResultByTaskIdentifier looks up a collection outcome by idempotency key
func (r *ResultRepository) FindResultByTaskIdentifier(taskIdentifier string) (*models.DeviceBackupResult, error) {
	var result models.DeviceBackupResult
	err := r.db.Where("task_identifier = ?", taskIdentifier).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetOverallDuration back-fills end-to-end timing on a collection outcome.
// This is the only post-creation mutation allowed on the row.
func (r *ResultRepository) SetOverallDuration(taskIdentifier string, durationMs int64) error {
	return r.db.Model(&models.DeviceBackupResult{}).
		Where("task_identifier = ?", taskIdentifier).
		Update("overall_duration_ms", durationMs).Error
}

// RecentResults returns the newest collection outcomes
func (r *ResultRepository) RecentResults(limit int) ([]models.DeviceBackupResult, error) {
	var results []models.DeviceBackupResult
	err := r.db.Order("timestamp DESC").Limit(limit).Find(&results).Error
	return results, err
}

// StoredBackupExists reports whether a StoredBackup exists for the
// idempotency key
func (r *ResultRepository) StoredBackupExists(taskIdentifier string) (bool, error) {
	var count int64
	err := r.db.Model(&models.StoredBackup{}).
		Where("task_identifier = ?", taskIdentifier).
		Count(&count).Error
	return count > 0, err
}

// CreateStoredBackup persists a storage outcome
func (r *ResultRepository) CreateStoredBackup(stored *models.StoredBackup) error {
	return r.db.Create(stored).Error
}

// RecentStoredBackups returns the newest storage outcomes
func (r *ResultRepository) RecentStoredBackups(limit int) ([]models.StoredBackup, error) {
	var stored []models.StoredBackup
	err := r.db.Order("timestamp DESC").Limit(limit).Find(&stored).Error
	return stored, err
}
