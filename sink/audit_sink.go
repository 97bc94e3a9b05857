package sink

import (
	"context"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"log/slog"
)

// AuditSink writes one structured log line per domain event.
// Message content is never logged.
type AuditSink struct {
	log *slog.Logger
}

var _ contract.EventSink = AuditSink{}

func NewAuditSink(log *slog.Logger) AuditSink {
	return AuditSink{log: log.With("sink", "audit")}
}

func (a AuditSink) Name() string { return "audit" }

func (a AuditSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageStored:
		a.log.Info("Message stored", "message_id", evt.Message.ID,
			"sender", evt.Message.Sender, "receiver", evt.Message.Receiver)
	case event.MessageDelivered:
		a.log.Info("Message delivered", "message_id", evt.MessageID,
			"sender", evt.Sender, "receiver", evt.Receiver, "replayed", evt.Replayed)
	case event.MessageSeen:
		a.log.Info("Message seen", "message_id", evt.MessageID, "sender", evt.Sender, "receiver", evt.Receiver)
	case event.PresenceChanged:
		a.log.Info("Presence changed", "user_id", evt.UserID, "online", evt.IsOnline, "online_count", len(evt.Online))
	default:
		a.log.Debug("Unhandled event", "event", e.Name())
	}
	return nil
}
