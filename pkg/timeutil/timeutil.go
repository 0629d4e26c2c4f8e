// Package timeutil resolves the configured display timezone.
//
// All database timestamps are UTC. Recurrence arithmetic happens in the
// display timezone so that "daily at 02:00" means 02:00 wall-clock time,
// then converts back to UTC for persistence and comparison.
package timeutil

import (
	"time"

	"github.com/slinky-software/devicevault/pkg/logger"
)

// LoadDisplayLocation resolves a timezone name, falling back to UTC
func LoadDisplayLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("Unknown display timezone, falling back to UTC", map[string]interface{}{
			"timezone": name,
		})
		return time.UTC
	}
	return loc
}
