package database

import (
	"fmt"

	"github.com/chachabrian/devforum-backend/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB opens the postgres connection and applies the pool settings.
func InitDB(cfg config.DatabaseCfg, log *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Infow("database connected", "host", cfg.Host, "name", cfg.Name)
	return db, nil
}

// Open builds the Store selected by cfg.Driver. For postgres it also returns
// the gorm handle so the caller can run migrations and close the pool.
func Open(cfg config.DatabaseCfg, log *zap.SugaredLogger) (Store, *gorm.DB, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil, nil
	case "postgres":
		db, err := InitDB(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return NewGormStore(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
