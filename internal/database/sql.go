package database

import (
	"fmt"
	"time"

	"mfaengine/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dialector(config models.DatabaseConfiguration) (gorm.Dialector, error) {
	switch config.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			config.Host, config.User, config.Password, config.Name, config.Port, config.SSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(config.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", config.Type)
	}
}

// Open connects to the configured database without running migrations.
func Open(config models.DatabaseConfiguration) (*gorm.DB, error) {
	d, err := dialector(config)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	if config.Type == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY under concurrent claims.
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate creates or updates the engine tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.MFAConfig{},
		&models.BackupCode{},
		&models.PendingChallenge{},
		&models.VerificationAttempt{},
		&models.AttemptGate{},
	)
}

func InitDB(config models.DatabaseConfiguration) *gorm.DB {
	db, err := Open(config)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}

	if err = Migrate(db); err != nil {
		zap.L().Fatal("Failed to migrate database", zap.Error(err))
	}

	zap.L().Info("Database ready", zap.String("type", config.Type))
	return db
}
