package datastore

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/datastore/entities"
	"github.com/ridecheck/ridecheck/internal/datastore/repository"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// Models lists every table this package migrates.
func Models() []any {
	return []any{&entities.CacheGeneration{}, &entities.CacheEntry{}}
}

// Open connects to the configured database and migrates the schema.
func Open(settings conf.StorageSettings, log logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Nop()
	}
	var dialector gorm.Dialector
	switch settings.Type {
	case conf.StorageSQLite:
		dialector = sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", settings.Path))
	case conf.StorageMySQL:
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, errors.Categorize(fmt.Errorf("unsupported database type %q", settings.Type), errors.CategoryConfig, "datastore")
	}

	mode := gorm_logger.Silent
	if settings.Debug {
		mode = gorm_logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gorm_logger.Default.LogMode(mode),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Categorize(fmt.Errorf("open %s database: %w", settings.Type, err), errors.CategoryStorage, "datastore")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Categorize(err, errors.CategoryStorage, "datastore")
	}
	if settings.Type == conf.StorageSQLite {
		// SQLite allows one writer; queue writers in the pool instead of
		// failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Categorize(fmt.Errorf("migrate cache tables: %w", err), errors.CategoryStorage, "datastore")
	}
	log.Info("cache database ready", logger.String("type", settings.Type))
	return db, nil
}

// NewStorage returns the shell.Storage selected by settings, plus a close
// function for its resources.
func NewStorage(settings conf.StorageSettings, log logger.Logger) (shell.Storage, func() error, error) {
	if settings.Type == conf.StorageMemory {
		return shell.NewMemoryStorage(), func() error { return nil }, nil
	}
	db, err := Open(settings, log)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return NewStore(repository.NewCacheRepository(db)), sqlDB.Close, nil
}
