package database

import (
	"context"
	"errors"

	"github.com/chachabrian/devforum-backend/internal/models"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotConsumed means a conditional consume matched no unused record.
	ErrNotConsumed = errors.New("otp already consumed")
)

// UserRepository is the credential store.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	MarkVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, user *models.User) error
}

// OTPRepository is the one-time passcode store.
type OTPRepository interface {
	Create(ctx context.Context, otp *models.OTP) error
	// FindByID loads the record together with its owning user.
	FindByID(ctx context.Context, id string) (*models.OTP, error)
	// Consume flips used from false to true in a single conditional update
	// and returns ErrNotConsumed when no unused record matched.
	Consume(ctx context.Context, id string) error
}

// Store groups the repositories and the transaction boundary that lets a
// caller apply paired mutations atomically.
type Store interface {
	Users() UserRepository
	OTPs() OTPRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
