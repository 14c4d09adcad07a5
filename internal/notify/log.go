package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LogNotifier writes codes to the application log. Development only.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendOTP(_ context.Context, msg OTPMessage) error {
	n.log.Infow("otp issued",
		"email", msg.Email,
		"purpose", msg.Purpose,
		"code", msg.Code,
		"validFor", validFor(msg),
	)
	return nil
}

func validFor(msg OTPMessage) string {
	mins := int(msg.ValidFor.Round(time.Minute).Minutes())
	if mins <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
