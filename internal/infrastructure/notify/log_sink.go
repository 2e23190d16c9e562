package notify

import (
	"context"
	"log/slog"

	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/ports"
)

// LogSink writes each notification as a structured log line.
type LogSink struct{}

func NewLogSink() LogSink {
	return LogSink{}
}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(ctx context.Context, event ports.NotificationEvent) error {
	logging.Info(ctx, "ncr notification",
		slog.String("ncr_number", event.NCRNumber),
		slog.String("recipient", event.Recipient),
		slog.String("occurred_at", event.OccurredAt),
		slog.Any("data", event.Data),
	)
	return nil
}
