package mail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Message is an outbound email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers outbound email. Delivery transport lives outside this service.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them
type LogSender struct {
	logger *zap.Logger
	// RevealBody includes the body in the log line, for local development only
	RevealBody bool
}

// NewLogSender creates a LogSender
func NewLogSender(logger *zap.Logger, revealBody bool) *LogSender {
	return &LogSender{logger: logger, RevealBody: revealBody}
}

// Send logs the message
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	}
	if s.RevealBody {
		fields = append(fields, zap.String("body", msg.Body))
	}
	s.logger.Info("outbound email", fields...)
	return nil
}

// OTPMessage renders the one-time passcode email
func OTPMessage(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your verification code",
		Body: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.\n"+
			"If you did not request it, you can ignore this email.", code, int(ttl.Minutes())),
	}
}
