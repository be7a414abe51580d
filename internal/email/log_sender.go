package email

import (
	"context"
	"log/slog"
)

// LogSender writes emails to the log instead of delivering them. Meant for
// local development only: addresses are logged unmasked and bodies contain
// confirmation and reset links.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, from, recipient Address, subject, body string) error {
	s.logger.InfoContext(ctx, "send email",
		slog.String("from", string(from)),
		slog.String("recipient", string(recipient)),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
