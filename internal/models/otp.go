package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTPPurpose defines which flow an OTP was issued for
type OTPPurpose string

const (
	OTPPurposeSignup        OTPPurpose = "signup"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// OTP stores one issued passcode. Its ID is the otp_key handed to the client.
type OTP struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string     `gorm:"type:uuid;not null;index" json:"userId"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
	Code      string     `gorm:"size:6;not null" json:"-"`
	Purpose   OTPPurpose `gorm:"size:32;not null" json:"purpose"`
	ExpiresAt time.Time  `gorm:"not null" json:"expiresAt"`
	Used      bool       `gorm:"default:false" json:"used"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (OTP) TableName() string {
	return "otps"
}

func (o *OTP) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether now is past the record's expiry. A record is still
// valid at exactly ExpiresAt.
func (o *OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
