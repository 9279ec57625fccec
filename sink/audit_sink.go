package sink

import (
	"context"
	"fmt"
	"log/slog"
	"relay-lab/domain/event"
)

// AuditSink writes connection and delivery events to the structured log.
// It never returns an error: auditing is fire-and-forget and must not affect
// delivery outcomes.
type AuditSink struct {
	log *slog.Logger
}

func NewAuditSink(log *slog.Logger) AuditSink {
	return AuditSink{log: log}
}

func (s AuditSink) Consume(_ context.Context, e event.Event) error {
	switch payload := e.Payload.(type) {
	case event.ConnectionOpened:
		s.log.Info("Connection opened", "user", payload.User, "conn", payload.Conn)
	case event.ConnectionClosed:
		s.log.Info("Connection closed", "user", payload.User, "conn", payload.Conn,
			"duration", payload.Duration, "reason", payload.Reason)
	case event.MessageSent:
		s.log.Info("Message sent", "message", payload.Message.ID,
			"kind", payload.Message.Target.Kind, "type", payload.Message.Type,
			"retries", payload.Message.RetryCount)
	case event.MessageFailed:
		s.log.Warn("Message failed permanently", "message", payload.Message.ID,
			"kind", payload.Message.Target.Kind, "retries", payload.Message.RetryCount,
			"error", payload.LastError)
	case event.MessageExpired:
		s.log.Info("Message expired undelivered", "message", payload.Message.ID,
			"kind", payload.Message.Target.Kind)
	default:
		s.log.Debug(fmt.Sprintf("Unhandled audit event : %v", e.Type))
	}
	return nil
}
