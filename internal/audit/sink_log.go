package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, event Event) error {
	attrs := []any{
		"event", event.Type,
		"request_id", event.RequestID,
		"client_ip_prefix", event.ClientIP,
	}
	if event.Browser != "" {
		attrs = append(attrs, "browser", event.Browser, "os", event.OS)
	}
	if event.UserID != "" {
		attrs = append(attrs, "user_id", event.UserID)
	}
	for k, v := range event.Details {
		attrs = append(attrs, k, v)
	}
	s.logger.InfoContext(ctx, "security event", attrs...)
	return nil
}
