package repository

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB(cfg *config.Config) error {
	var err error

	// Configure GORM logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	if cfg.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	switch cfg.DatabaseType {
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for PostgreSQL")
		}

		log.Printf("Connecting to PostgreSQL: %s", maskPassword(cfg.DatabaseURL))
		DB, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

	case "sqlite":
		DB, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormConfig)
		if err != nil {
			return fmt.Errorf("failed to open SQLite database: %w", err)
		}

	default:
		return fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}

	if err := Migrate(DB); err != nil {
		return err
	}

	log.Println("Database initialized successfully")
	return nil
}

// Migrate auto-migrates all pipeline models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CollectionGroup{},
		&models.Credential{},
		&models.BackupLocation{},
		&models.BackupSchedule{},
		&models.Device{},
		&models.DeviceBackupResult{},
		&models.StoredBackup{},
		&models.SchedulerState{},
		&models.PipelineEvent{},
	)
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// maskPassword masks the password in a connection string for logging
func maskPassword(url string) string {
	if len(url) < 20 {
		return "****"
	}

	start := -1
	end := -1
	for i := 0; i < len(url); i++ {
		if url[i] == ':' && start == -1 && i > 10 {
			start = i + 1
		}
		if url[i] == '@' && start != -1 {
			end = i
			break
		}
	}

	if start == -1 || end == -1 || start >= end {
		return "****"
	}

	return url[:start] + "****" + url[end:]
}
