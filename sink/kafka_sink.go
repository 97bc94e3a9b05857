package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes domain events for downstream consumers (analytics,
// notifications). Records are keyed by receiver, or by user for presence,
// so one inbox keeps its order within a partition.
type KafkaSink struct {
	log    *slog.Logger
	writer messageWriter
}

var _ contract.EventSink = (*KafkaSink)(nil)

func NewKafkaSink(log *slog.Logger, brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithWriter(log, &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func NewKafkaSinkWithWriter(log *slog.Logger, writer messageWriter) *KafkaSink {
	return &KafkaSink{log: log, writer: writer}
}

func (k *KafkaSink) Name() string { return "kafka" }

// record is the JSON published on the topic. Message content stays in the store.
type record struct {
	Event     string    `json:"event"`
	At        time.Time `json:"at"`
	MessageID string    `json:"messageId,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
	Status    string    `json:"status,omitempty"`
	Replayed  bool      `json:"replayed,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Online    *bool     `json:"online,omitempty"`
}

func (k *KafkaSink) Consume(ctx context.Context, e event.DomainEvent) error {
	key, rec, ok := toRecord(e)
	if !ok {
		return nil
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Name(), err)
	}
	if err = k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Time: rec.At}); err != nil {
		return fmt.Errorf("publish %s: %w", e.Name(), err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func toRecord(e event.DomainEvent) (string, record, bool) {
	rec := record{Event: e.Name(), At: e.OccurredAt()}
	switch evt := e.(type) {
	case event.MessageStored:
		rec.MessageID, rec.Sender, rec.Receiver = evt.Message.ID, evt.Message.Sender, evt.Message.Receiver
		rec.Status = string(evt.Message.Status)
		return evt.Message.Receiver, rec, true
	case event.MessageDelivered:
		rec.MessageID, rec.Sender, rec.Receiver = evt.MessageID, evt.Sender, evt.Receiver
		rec.Replayed = evt.Replayed
		return evt.Receiver, rec, true
	case event.MessageSeen:
		rec.MessageID, rec.Sender, rec.Receiver = evt.MessageID, evt.Sender, evt.Receiver
		return evt.Receiver, rec, true
	case event.PresenceChanged:
		rec.UserID = evt.UserID
		online := evt.IsOnline
		rec.Online = &online
		return evt.UserID, rec, true
	default:
		return "", record{}, false
	}
}
