package models

import (
	"time"
)

// SchedulerState is a singleton row (pk=1) recording scheduler liveness.
// last_tick drives the missed-window catch-up on restart.
type SchedulerState struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	LastTick      *time.Time `json:"last_tick,omitempty"`
	IsRunning     bool       `gorm:"default:false;not null" json:"is_running"`
	SchedulerPID  int        `json:"scheduler_pid,omitempty"`
	LastRestartAt *time.Time `json:"last_restart_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SchedulerStateID is the fixed primary key of the singleton row
const SchedulerStateID uint = 1
