package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wattson/internal/models"
)

// Config tunes database initialization.
type Config struct {
	// Path overrides the default build-dependent database location.
	Path string
	// LogLevel defaults to silent when unset.
	LogLevel logger.LogLevel
}

// Init opens (creating if needed) the local sqlite store and migrates the
// schema. SQLite handles one writer at a time, so the pool is pinned to a
// single connection.
func Init(cfg Config) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		var err error
		path, err = dbPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	level := cfg.LogLevel
	if level == 0 {
		level = logger.Silent
	}
	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.Preferences{},
	)
}
