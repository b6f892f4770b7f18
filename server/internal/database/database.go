package database

import (
	"fmt"

	"quizrun-go/internal/config"
	logging "quizrun-go/internal/logging"
	"quizrun-go/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the configured database and runs migrations.
func Open(dbConf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbConf.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			dbConf.Host, dbConf.User, dbConf.Password, dbConf.DBName, dbConf.Port)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dbConf.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConf.Driver)
	}

	// Create our custom GORM logger
	gormLogger := logging.NewGormLogger(log)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.", zap.String("driver", dbConf.Driver))

	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	// GORM's AutoMigrate will create tables, columns, and foreign keys.
	// It will NOT create custom indexes, so we handle that separately.
	err := db.AutoMigrate(
		&models.Quiz{},
		&models.Question{},
		&models.Attempt{},
		&models.Answer{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	// The sweeper scans in-progress timed attempts by start time.
	sweepIndex := `CREATE INDEX IF NOT EXISTS idx_attempts_sweep ON attempts (status, started_at);`
	if err := db.Exec(sweepIndex).Error; err != nil {
		return fmt.Errorf("failed to create custom index on attempts table: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
