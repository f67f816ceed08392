package infra

import (
	"fmt"

	"settlepos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and migrates the
// ledger tables. Only sessions, movements, receipts and audit records are
// durable — in-flight settlements never touch the database.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return db, nil
}

// RunMigrations applies the schema. Also called by integration tests against
// a throwaway container database.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.CashSession{},
		&model.CashMovement{},
		&model.Receipt{},
		&model.AuditRecord{},
	); err != nil {
		return err
	}

	// Partial unique index: at most one open session per (operator, location).
	// AutoMigrate cannot express partial indexes.
	return db.Exec(`
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uniq_open_session_per_operator_location') THEN
    CREATE UNIQUE INDEX uniq_open_session_per_operator_location
        ON cash_sessions (operator_id, location_id)
        WHERE status = 'open';
  END IF;
END $$`).Error
}
