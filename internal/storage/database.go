package storage

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"remindify/internal/config"
	"remindify/internal/models"
)

// InitDB opens the database described by cfg.
// Unique-index violations surface as gorm.ErrDuplicatedKey on both supported drivers.
func InitDB(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(PostgresDSN(cfg))
	case "sqlite":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("sqlite database path is required")
		}
		dialector = sqlite.Open(cfg.Path + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// PostgresDSN builds a libpq key/value connection string from cfg.
func PostgresDSN(cfg config.DatabaseConfig) string {
	var dsnParts []string
	dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
	dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
	dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
	dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
	if cfg.Password != "" {
		dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
	}
	dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
	return strings.Join(dsnParts, " ")
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// AutoMigrateTables runs GORM's auto-migration for all models.
// The unique pair index on connections is created here; it is what prevents two
// simultaneous requests between the same users.
func AutoMigrateTables(db *gorm.DB) error {
	log.Println("Running database migrations...")
	err := db.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.Reminder{},
		&models.ConnectionEvent{},
	)
	if err != nil {
		log.Printf("Database migration failed: %v", err)
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration complete.")
	return nil
}
