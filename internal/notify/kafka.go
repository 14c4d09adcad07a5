package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chachabrian/devforum-backend/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const otpIssuedEvent = "otp.issued"

type otpEvent struct {
	Type       string     `json:"type"`
	OccurredAt time.Time  `json:"occurredAt"`
	Payload    OTPMessage `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier hands OTP deliveries to a downstream mail service by
// publishing otp.issued events keyed by recipient address.
type KafkaNotifier struct {
	writer messageWriter
	log    *zap.SugaredLogger
}

func NewKafkaNotifier(cfg config.KafkaCfg, log *zap.SugaredLogger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaNotifier{writer: w, log: log}
}

func (n *KafkaNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	value, err := json.Marshal(otpEvent{Type: otpIssuedEvent, OccurredAt: time.Now().UTC(), Payload: msg})
	if err != nil {
		return fmt.Errorf("encode otp event: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Email),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(otpIssuedEvent)},
		},
	})
	if err != nil {
		n.log.Errorw("failed to publish otp event", "email", msg.Email, "error", err)
		return fmt.Errorf("publish otp event: %w", err)
	}
	n.log.Infow("published otp event", "email", msg.Email, "purpose", msg.Purpose)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
