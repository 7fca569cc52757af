// Package db opens the optional relational side table that mirrors bucket
// ownership.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arencloud/bucketgw/internal/config"
	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/arencloud/bucketgw/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema. It is an
// error to call it with DB_DRIVER=none.
func Open(cfg *config.Config, logger logging.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres", "postgresql":
		if cfg.DBDsn == "" {
			return nil, fmt.Errorf("db: postgres needs DATABASE_URL or DB_DSN")
		}
		dialector = postgres.Open(cfg.DBDsn)
		logger.Info("db connect", "driver", "postgres")
	case "sqlite":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("db: sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DBPath)
		logger.Info("db connect", "driver", "sqlite", "path", cfg.DBPath)
	default:
		return nil, fmt.Errorf("db: driver %q has no side table", cfg.DBDriver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger, levelFor(logging.GetLevel()))})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	if err := gdb.AutoMigrate(&models.Bucket{}); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}
	return gdb, nil
}

// levelFor maps the process log level onto gorm's: SQL traces only at debug.
func levelFor(lvl string) gormlogger.LogLevel {
	switch lvl {
	case "debug":
		return gormlogger.Info
	case "error", "dpanic", "panic", "fatal":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
