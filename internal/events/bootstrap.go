package events

import (
	"gorm.io/gorm"

	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// ConfigureStorage wires the global event bus to the database, adding
// InfluxDB as a second sink when configured. The returned function
// flushes and closes any opened sinks and is safe to defer.
func ConfigureStorage(cfg *config.Config, db *gorm.DB) func() {
	dbStorage := NewDatabaseEventStorage(db)

	var storage EventStorage = dbStorage
	closer := func() {}

	if cfg.InfluxDBURL != "" && cfg.InfluxDBToken != "" {
		influx, err := NewInfluxDBEventStorage(InfluxDBConfig{
			URL:    cfg.InfluxDBURL,
			Token:  cfg.InfluxDBToken,
			Org:    cfg.InfluxDBOrg,
			Bucket: cfg.InfluxDBBucket,
		})
		if err != nil {
			logger.Warn("InfluxDB unavailable, events go to database only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			storage = NewMultiEventStorage(dbStorage, influx)
			closer = influx.Close
		}
	}

	SetEventStorage(storage)
	return closer
}
