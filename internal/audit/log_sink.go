package audit

import (
	"context"
	"log/slog"
	"time"
)

// LogSink writes audit events to the structured log. Used when no database
// is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed audit sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	attrs := []any{
		"payment_id", e.PaymentID,
		"action", e.Action,
		"to_status", e.ToStatus,
	}
	if e.FromStatus != "" {
		attrs = append(attrs, "from_status", e.FromStatus)
	}
	if e.ActorID != "" {
		attrs = append(attrs, "actor_id", e.ActorID, "actor_role", e.ActorRole)
	}
	if e.Amount != "" {
		attrs = append(attrs, "amount", e.Amount)
	}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	s.logger.InfoContext(ctx, "payment audit", attrs...)
	return nil
}

// Compile-time assertion that LogSink implements Sink.
var _ Sink = (*LogSink)(nil)
