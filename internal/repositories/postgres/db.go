package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres through gorm and applies the connection pool settings.
func Open(dsn string, maxOpenConns int, connMaxLifetime time.Duration) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// Migrate creates the tables and the partial indexes gorm tags cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.NodeSession{}, &models.LedgerEntry{}, &models.UserBalance{}); err != nil {
		return err
	}
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_device ON node_sessions (user_id, device_key) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_ledger_user_sequence ON ledger_entries (user_id, sequence)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// translateError maps gorm and driver errors onto the repository error kinds.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.ErrNotFound
	case errors.Is(err, repositories.ErrVersionConflict),
		errors.Is(err, repositories.ErrDuplicateKey),
		errors.Is(err, repositories.ErrNotFound):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", repositories.ErrDuplicateKey, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %v", repositories.ErrStorageUnavailable, err)
	}
	return err
}
