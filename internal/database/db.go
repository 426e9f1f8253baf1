package database

import (
	"fmt"
	"time"

	"backoffice/internal/config"
	"backoffice/internal/logger"
	"backoffice/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Models lists every table owned by AutoMigrate, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Agent{},
		&model.Customer{},
		&model.InvoiceTemplate{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.Payment{},
		&model.SubmittedPayment{},
		&model.SedaRegistration{},
		&model.AuditEvent{},
		&model.SyncRun{},
		&model.SyncCheckpoint{},
		&model.ColumnDescription{},
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	if err := AutoMigrate(db); err != nil {
		log.Warn("Failed to auto-migrate models", zap.Error(err))
	}

	return db, nil
}

// AutoMigrate creates or alters the model tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
