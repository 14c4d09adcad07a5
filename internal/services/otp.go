package services

import (
	"crypto/subtle"
	"time"

	"github.com/chachabrian/devforum-backend/internal/models"
)

// CheckOTP decides whether rec may be consumed for the given flow. It is a
// pure function of its inputs and returns the first failing reason:
// ErrInvalidOTPKey for a record issued to another flow, ErrOTPUsed,
// ErrOTPExpired, then ErrOTPMismatch for a foreign email or a wrong code.
// The owning user must be loaded on rec.
func CheckOTP(rec *models.OTP, purpose models.OTPPurpose, email, code string, now time.Time) error {
	if rec == nil || rec.Purpose != purpose {
		return ErrInvalidOTPKey
	}
	if rec.Used {
		return ErrOTPUsed
	}
	if rec.Expired(now) {
		return ErrOTPExpired
	}
	if rec.User.Email != email {
		return ErrOTPMismatch
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return ErrOTPMismatch
	}
	return nil
}

func otpResult(err error) string {
	switch err {
	case nil:
		return "ok"
	case ErrInvalidOTPKey:
		return "invalid_key"
	case ErrOTPUsed:
		return "used"
	case ErrOTPExpired:
		return "expired"
	case ErrOTPMismatch:
		return "mismatch"
	default:
		return "error"
	}
}
