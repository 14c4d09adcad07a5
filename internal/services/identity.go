package services

import (
	"context"
	"errors"
	"time"

	"github.com/chachabrian/devforum-backend/internal/database"
	"github.com/chachabrian/devforum-backend/internal/metrics"
	"github.com/chachabrian/devforum-backend/internal/models"
	"github.com/chachabrian/devforum-backend/internal/notify"
	"github.com/chachabrian/devforum-backend/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer mints the session credential handed out on login.
type TokenIssuer interface {
	GenerateToken(profile models.Profile) (string, error)
}

type Options struct {
	BcryptCost int
	OTPTTL     time.Duration
	// RequireVerifiedLogin rejects logins from accounts that never completed
	// OTP activation. Off by default: unverified users may sign in.
	RequireVerifiedLogin bool
}

// IdentityService runs the account lifecycle: signup, OTP activation,
// login and the password reset flow.
type IdentityService struct {
	store    database.Store
	notifier notify.Notifier
	tokens   TokenIssuer
	log      *zap.SugaredLogger
	opts     Options

	now          func() time.Time
	generateCode func() (string, error)
}

func NewIdentityService(store database.Store, notifier notify.Notifier, tokens TokenIssuer, log *zap.SugaredLogger, opts Options) *IdentityService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.OTPTTL == 0 {
		opts.OTPTTL = utils.OTPExpiration
	}
	return &IdentityService{
		store:        store,
		notifier:     notifier,
		tokens:       tokens,
		log:          log,
		opts:         opts,
		now:          time.Now,
		generateCode: utils.GenerateOTP,
	}
}

type RegisterInput struct {
	Name     string   `json:"name" validate:"omitempty,min=2"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8,bcrypt"`
	Phone    string   `json:"phone" validate:"omitempty,len=10"`
	About    string   `json:"about"`
	Tags     []string `json:"tags"`
}

// RegisterAccount creates an unverified user and issues a signup OTP. It
// returns the otp_key; the code itself only travels through the notifier.
func (s *IdentityService) RegisterAccount(ctx context.Context, in RegisterInput) (string, error) {
	if in.Name == "" {
		in.Name = models.EmailLocalPart(in.Email)
	}
	if err := validateStruct(in); err != nil {
		return "", err
	}

	_, err := s.store.Users().FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return "", ErrConflict
	case !errors.Is(err, database.ErrRecordNotFound):
		return "", internal("lookup user", err)
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	user := &models.User{
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		About: in.About,
		Tags:  tags,
	}
	if err := user.SetPassword(in.Password, s.opts.BcryptCost); err != nil {
		return "", internal("hash password", err)
	}

	otp, err := s.newOTP(models.OTPPurposeSignup)
	if err != nil {
		return "", err
	}

	err = s.store.Transaction(ctx, func(tx database.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, database.ErrDuplicateEmail) {
				return ErrConflict
			}
			return internal("create user", err)
		}
		otp.UserID = user.ID
		if err := tx.OTPs().Create(ctx, otp); err != nil {
			return internal("create otp", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Infow("user registered", "userId", user.ID)
	if err := s.deliver(ctx, user, otp); err != nil {
		return "", err
	}
	return otp.ID, nil
}

type ActivateInput struct {
	Email  string `json:"email" validate:"required,email"`
	OTPKey string `json:"otp_key" validate:"required"`
	OTP    string `json:"otp" validate:"required,len=6,numeric"`
}

// ActivateAccount consumes a signup OTP and marks its owner verified. Both
// writes commit together or not at all.
func (s *IdentityService) ActivateAccount(ctx context.Context, in ActivateInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}

	err := s.store.Transaction(ctx, func(tx database.Store) error {
		rec, err := s.checkOTP(ctx, tx, models.OTPPurposeSignup, in.OTPKey, in.Email, in.OTP)
		if err != nil {
			return err
		}
		if err := consume(ctx, tx, rec.ID); err != nil {
			return err
		}
		if err := tx.Users().MarkVerified(ctx, rec.UserID); err != nil {
			return internal("verify user", err)
		}
		return nil
	})
	s.recordCheck(models.OTPPurposeSignup, err)
	if err != nil {
		return err
	}

	s.log.Infow("user verified", "otpKey", in.OTPKey)
	return nil
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResult struct {
	User  models.Profile `json:"user"`
	Token string         `json:"token"`
}

// Authenticate checks credentials and returns the sanitized profile with a
// signed token. An unknown email yields ErrNotFound, which lets callers
// probe for registered addresses.
func (s *IdentityService) Authenticate(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.store.Users().FindByEmail(ctx, in.Email)
	if err != nil {
		metrics.Logins.WithLabelValues("not_found").Inc()
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, internal("lookup user", err)
	}

	if err := user.CheckPassword(in.Password); err != nil {
		metrics.Logins.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorized
	}

	if s.opts.RequireVerifiedLogin && !user.Verified {
		metrics.Logins.WithLabelValues("unverified").Inc()
		return nil, ErrUnverified
	}

	profile := user.Profile()
	token, err := s.tokens.GenerateToken(profile)
	if err != nil {
		return nil, internal("generate token", err)
	}

	metrics.Logins.WithLabelValues("ok").Inc()
	return &AuthResult{User: profile, Token: token}, nil
}

// newOTP builds an unsaved record with a fresh code and expiry.
func (s *IdentityService) newOTP(purpose models.OTPPurpose) (*models.OTP, error) {
	code, err := s.generateCode()
	if err != nil {
		return nil, internal("generate otp", err)
	}
	return &models.OTP{
		ID:        uuid.NewString(),
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(s.opts.OTPTTL),
	}, nil
}

// deliver sends an already committed OTP. A failure is reported to the
// caller but does not undo the issuance.
func (s *IdentityService) deliver(ctx context.Context, user *models.User, otp *models.OTP) error {
	metrics.OTPIssued.WithLabelValues(string(otp.Purpose)).Inc()
	err := s.notifier.SendOTP(ctx, notify.OTPMessage{
		Email:     user.Email,
		Name:      user.Name,
		Code:      otp.Code,
		Purpose:   otp.Purpose,
		ExpiresAt: otp.ExpiresAt,
		ValidFor:  s.opts.OTPTTL,
	})
	if err != nil {
		return internal("deliver otp", err)
	}
	return nil
}

// checkOTP loads the record behind otpKey through st and applies CheckOTP.
func (s *IdentityService) checkOTP(ctx context.Context, st database.Store, purpose models.OTPPurpose, otpKey, email, code string) (*models.OTP, error) {
	if _, err := uuid.Parse(otpKey); err != nil {
		return nil, ErrInvalidOTPKey
	}
	rec, err := st.OTPs().FindByID(ctx, otpKey)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, ErrInvalidOTPKey
		}
		return nil, internal("load otp", err)
	}
	if err := CheckOTP(rec, purpose, email, code, s.now()); err != nil {
		return nil, err
	}
	return rec, nil
}

func consume(ctx context.Context, tx database.Store, id string) error {
	if err := tx.OTPs().Consume(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotConsumed) {
			return ErrOTPUsed
		}
		return internal("consume otp", err)
	}
	return nil
}

func (s *IdentityService) recordCheck(purpose models.OTPPurpose, err error) {
	if errors.Is(err, ErrValidation) {
		return
	}
	metrics.OTPChecks.WithLabelValues(string(purpose), otpResult(err)).Inc()
}
