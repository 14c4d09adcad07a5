// Package notify delivers one-time passcodes to users out-of-band.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/chachabrian/devforum-backend/internal/config"
	"github.com/chachabrian/devforum-backend/internal/models"
	"go.uber.org/zap"
)

// OTPMessage is everything a driver needs to tell a user their code.
type OTPMessage struct {
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	Code      string            `json:"code"`
	Purpose   models.OTPPurpose `json:"purpose"`
	ExpiresAt time.Time         `json:"expiresAt"`
	ValidFor  time.Duration     `json:"validFor"`
}

// Notifier sends an OTP to the user's registered email address.
type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// New builds the Notifier selected by cfg.Notifier.Driver. The returned
// close function releases driver resources and is never nil.
func New(cfg *config.Config, log *zap.SugaredLogger) (Notifier, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Notifier.Driver {
	case "smtp":
		return NewSMTPNotifier(cfg.SMTP, log), noop, nil
	case "kafka":
		k := NewKafkaNotifier(cfg.Kafka, log)
		return k, k.Close, nil
	case "log":
		return NewLogNotifier(log), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown notifier driver %q", cfg.Notifier.Driver)
	}
}
