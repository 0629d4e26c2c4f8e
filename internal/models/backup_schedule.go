package models

import (
	"time"
)

// Schedule types supported by the recurrence calculator
const (
	ScheduleDaily      = "daily"
	ScheduleWeekly     = "weekly"
	ScheduleMonthly    = "monthly"
	ScheduleCustomCron = "custom_cron"
)

// BackupSchedule represents a recurring backup definition shared by devices
type BackupSchedule struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:128;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	// ScheduleType: daily, weekly, monthly, custom_cron
	ScheduleType string `gorm:"size:20;default:'daily';not null" json:"schedule_type"`
	Hour         int    `gorm:"default:0;not null" json:"hour"`
	Minute       int    `gorm:"default:0;not null" json:"minute"`

	// DayOfWeek for weekly schedules (0=Sunday .. 6=Saturday)
	DayOfWeek int `gorm:"default:0;not null" json:"day_of_week"`

	// DayOfMonth for monthly schedules (1-31)
	DayOfMonth int `gorm:"default:1;not null" json:"day_of_month"`

	// CronExpression for custom_cron schedules (minute hour dom month dow)
	CronExpression string `gorm:"size:255" json:"cron_expression,omitempty"`

	// default:false, matching Device.Enabled: gorm omits false on insert
	Enabled bool `gorm:"default:false;not null" json:"enabled"`

	// Execution tracking, written by the scheduler after each dispatch
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
