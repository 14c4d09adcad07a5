package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chachabrian/devforum-backend/internal/database"
	"github.com/chachabrian/devforum-backend/internal/models"
)

type ResetAction string

const (
	ActionRequestOTP    ResetAction = "request_otp"
	ActionVerifyOTP     ResetAction = "verify_otp"
	ActionResetPassword ResetAction = "reset_password"
)

// ResetCommand is one step of the forgot-password flow. The set of
// implementations is closed: RequestResetInput, VerifyResetInput and
// ResetPasswordInput.
type ResetCommand interface {
	Action() ResetAction
	resetCommand()
}

type RequestResetInput struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyResetInput struct {
	Email  string `json:"email" validate:"required,email"`
	OTPKey string `json:"otp_key" validate:"required"`
	OTP    string `json:"otp" validate:"required,len=6,numeric"`
}

type ResetPasswordInput struct {
	Email       string `json:"email" validate:"required,email"`
	OTPKey      string `json:"otp_key" validate:"required"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=30,bcrypt"`
}

func (RequestResetInput) Action() ResetAction  { return ActionRequestOTP }
func (VerifyResetInput) Action() ResetAction   { return ActionVerifyOTP }
func (ResetPasswordInput) Action() ResetAction { return ActionResetPassword }

func (RequestResetInput) resetCommand()  {}
func (VerifyResetInput) resetCommand()   {}
func (ResetPasswordInput) resetCommand() {}

// DecodeResetCommand parses a forgot-password request body into the variant
// named by its "action" field.
func DecodeResetCommand(body []byte) (ResetCommand, error) {
	var envelope struct {
		Action ResetAction `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, invalidField("body", "must be a valid JSON object")
	}

	var cmd ResetCommand
	switch envelope.Action {
	case ActionRequestOTP:
		var in RequestResetInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, invalidField("body", "must be a valid JSON object")
		}
		cmd = in
	case ActionVerifyOTP:
		var in VerifyResetInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, invalidField("body", "must be a valid JSON object")
		}
		cmd = in
	case ActionResetPassword:
		var in ResetPasswordInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, invalidField("body", "must be a valid JSON object")
		}
		cmd = in
	default:
		return nil, invalidField("action", "must be one of request_otp, verify_otp, reset_password")
	}
	return cmd, nil
}

type ResetOutcome struct {
	Action   ResetAction
	OTPKey   string
	Verified bool
}

// ForgotPassword dispatches one forgot-password step.
func (s *IdentityService) ForgotPassword(ctx context.Context, cmd ResetCommand) (*ResetOutcome, error) {
	switch c := cmd.(type) {
	case RequestResetInput:
		key, err := s.RequestReset(ctx, c)
		if err != nil {
			return nil, err
		}
		return &ResetOutcome{Action: ActionRequestOTP, OTPKey: key}, nil
	case VerifyResetInput:
		if err := s.VerifyReset(ctx, c); err != nil {
			return nil, err
		}
		return &ResetOutcome{Action: ActionVerifyOTP, Verified: true}, nil
	case ResetPasswordInput:
		if err := s.ResetPassword(ctx, c); err != nil {
			return nil, err
		}
		return &ResetOutcome{Action: ActionResetPassword}, nil
	default:
		return nil, invalidField("action", "unsupported action")
	}
}

// RequestReset issues a password_reset OTP for an existing account.
func (s *IdentityService) RequestReset(ctx context.Context, in RequestResetInput) (string, error) {
	if err := validateStruct(in); err != nil {
		return "", err
	}

	user, err := s.store.Users().FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", internal("lookup user", err)
	}

	otp, err := s.newOTP(models.OTPPurposePasswordReset)
	if err != nil {
		return "", err
	}
	otp.UserID = user.ID
	if err := s.store.OTPs().Create(ctx, otp); err != nil {
		return "", internal("create otp", err)
	}

	s.log.Infow("password reset requested", "userId", user.ID)
	if err := s.deliver(ctx, user, otp); err != nil {
		return "", err
	}
	return otp.ID, nil
}

// VerifyReset reports whether a reset OTP would currently be accepted. It
// does not consume the record.
func (s *IdentityService) VerifyReset(ctx context.Context, in VerifyResetInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	_, err := s.checkOTP(ctx, s.store, models.OTPPurposePasswordReset, in.OTPKey, in.Email, in.OTP)
	s.recordCheck(models.OTPPurposePasswordReset, err)
	return err
}

// ResetPassword re-checks the OTP, replaces the owner's password hash and
// consumes the record in one transaction.
func (s *IdentityService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}

	// Reject bad codes before paying for bcrypt.
	rec, err := s.checkOTP(ctx, s.store, models.OTPPurposePasswordReset, in.OTPKey, in.Email, in.OTP)
	if err != nil {
		s.recordCheck(models.OTPPurposePasswordReset, err)
		return err
	}

	var user models.User
	if err := user.SetPassword(in.NewPassword, s.opts.BcryptCost); err != nil {
		return internal("hash password", err)
	}

	err = s.store.Transaction(ctx, func(tx database.Store) error {
		cur, err := s.checkOTP(ctx, tx, models.OTPPurposePasswordReset, rec.ID, in.Email, in.OTP)
		if err != nil {
			return err
		}
		if err := consume(ctx, tx, cur.ID); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, cur.UserID, user.PasswordHash); err != nil {
			return internal("update password", err)
		}
		return nil
	})
	s.recordCheck(models.OTPPurposePasswordReset, err)
	if err != nil {
		return err
	}

	s.log.Infow("password reset", "userId", rec.UserID)
	return nil
}
