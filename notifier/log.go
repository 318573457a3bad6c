package notifier

import (
	"context"
	"log/slog"
)

// Log is a notifier for development and tests. It writes the message to the
// log instead of delivering it, token included, so the flows can be walked
// end to end without an SMTP relay.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-only notifier
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Send logs the message instead of delivering it
func (l *Log) Send(ctx context.Context, destination, templateKind string, payload map[string]string) error {
	attrs := []any{
		"to", destination,
		"template", templateKind,
	}
	for k, v := range payload {
		attrs = append(attrs, k, v)
	}

	l.logger.InfoContext(ctx, "outbound notification", attrs...)
	return nil
}
