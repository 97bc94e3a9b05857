package event

import (
	"helpdesk-chat/domain"
	"time"
)

// DomainEvent is a fact emitted by the delivery engine or the session layer.
// Events travel through the fan-out worker to permanent sinks only; nothing in
// the delivery path depends on them being consumed.
type DomainEvent interface {
	Name() string
	OccurredAt() time.Time
}

const (
	NameMessageStored    = "message.stored"
	NameMessageDelivered = "message.delivered"
	NameMessageSeen      = "message.seen"
	NamePresenceChanged  = "presence.changed"
)

type MessageStored struct {
	Message domain.Message
}

func (e MessageStored) Name() string          { return NameMessageStored }
func (e MessageStored) OccurredAt() time.Time { return e.Message.CreatedAt }

// MessageDelivered is emitted once per message handed to the receiver's
// connection, live or by backlog replay.
type MessageDelivered struct {
	MessageID string
	Sender    string
	Receiver  string
	Replayed  bool
	At        time.Time
}

func (e MessageDelivered) Name() string          { return NameMessageDelivered }
func (e MessageDelivered) OccurredAt() time.Time { return e.At }

type MessageSeen struct {
	MessageID string
	Sender    string
	Receiver  string
	At        time.Time
}

func (e MessageSeen) Name() string          { return NameMessageSeen }
func (e MessageSeen) OccurredAt() time.Time { return e.At }

// PresenceChanged reports a user going online or offline.
// Online carries the full snapshot so sinks can mirror it without a registry.
type PresenceChanged struct {
	UserID   string
	IsOnline bool
	Online   []string
	At       time.Time
}

func (e PresenceChanged) Name() string          { return NamePresenceChanged }
func (e PresenceChanged) OccurredAt() time.Time { return e.At }

// TryPublish hands the event to the channel without blocking.
// It returns false when the channel is full or nil and the event was dropped.
func TryPublish(ch chan<- DomainEvent, e DomainEvent) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}
