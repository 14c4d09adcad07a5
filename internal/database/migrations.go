package database

import (
	"github.com/chachabrian/devforum-backend/internal/models"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	// Create tables if they don't exist
	if err := db.AutoMigrate(
		&models.User{},
		&models.OTP{},
	); err != nil {
		return err
	}

	// Lookups by owner for housekeeping and auditing
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_otps_user_purpose ON otps (user_id, purpose)`).Error; err != nil {
		return err
	}

	if db.Migrator().HasConstraint(&models.OTP{}, "otps_purpose_check") {
		return nil
	}
	return db.Exec(`ALTER TABLE otps ADD CONSTRAINT otps_purpose_check CHECK (purpose IN ('signup', 'password_reset'))`).Error
}
