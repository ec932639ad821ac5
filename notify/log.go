package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("mail")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, msg *Message) error {
	s.logger.Info("📧 Email (not sent)",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.Strings("bcc", msg.BCC),
		zap.String("subject", msg.Subject),
	)
	s.logger.Debug(msg.Text)
	return nil
}
