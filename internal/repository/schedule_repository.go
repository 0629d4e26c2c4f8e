package repository

import (
	"time"

	"github.com/slinky-software/devicevault/internal/models"
	"gorm.io/gorm"
)

// ScheduleRepository handles database operations for backup schedules
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindEnabled returns all enabled schedules
func (r *ScheduleRepository) FindEnabled() ([]models.BackupSchedule, error) {
	var schedules []models.BackupSchedule
	err := r.db.Where("enabled = ?", true).Find(&schedules).Error
	return schedules, err
}

// FindByID finds a schedule by id
func (r *ScheduleRepository) FindByID(id uint) (*models.BackupSchedule, error) {
	var schedule models.BackupSchedule
	if err := r.db.First(&schedule, id).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

// UpdateRunTimes records a completed dispatch tick for a schedule
func (r *ScheduleRepository) UpdateRunTimes(id uint, lastRun, nextRun time.Time) error {
	return r.db.Model(&models.BackupSchedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at": lastRun,
			"next_run_at": nextRun,
		}).Error
}

// Save persists a schedule. Callers that change timing fields are expected
// to recompute NextRunAt first (scheduler.Calculator.NextRun).
func (r *ScheduleRepository) Save(schedule *models.BackupSchedule) error {
	return r.db.Save(schedule).Error
}
