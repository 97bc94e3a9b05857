package event

import (
	"encoding/json"
	"helpdesk-chat/domain"
	"time"

	"github.com/samber/lo"
)

// Inbound event names, as emitted by clients.
const (
	UserConnected    = "user_connected"
	SendMessage      = "send_message"
	Typing           = "typing"
	MessageRead      = "message_read"
	LoadMessages     = "load_messages"
	UserDisconnected = "user_disconnected"
)

// Outbound event names. Typing is shared by both directions.
const (
	OnlineUsers      = "online_users"
	ReceiveMessage   = "receive_message"
	MessageSent      = "message_sent"
	MessageSeenEvent = "message_seen"
	PreviousMessages = "previous_messages"
	MessageError     = "message_error"
)

// Envelope is the frame exchanged on the websocket: {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an event addressed to one connection, encoded by the transport.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type SendMessagePayload struct {
	SenderID   string `json:"senderId" validate:"required,identity"`
	ReceiverID string `json:"receiverId" validate:"required,identity"`
	Message    string `json:"message"`
}

type TypingPayload struct {
	SenderID   string `json:"senderId" validate:"required,identity"`
	ReceiverID string `json:"receiverId" validate:"required,identity"`
}

type MessageReadPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	SenderID  string `json:"senderId" validate:"required,identity"`
}

type LoadMessagesPayload struct {
	SenderID string `json:"senderId" validate:"required,identity"`
}

type MessageSeenPayload struct {
	MessageID string `json:"messageId"`
}

type MessageErrorPayload struct {
	Event      string `json:"event"`
	ReceiverID string `json:"receiverId,omitempty"`
	Error      string `json:"error"`
}

// MessagePayload is the JSON shape of a message pushed to clients.
type MessagePayload struct {
	ID           string    `json:"_id"`
	Sender       string    `json:"sender"`
	Receiver     string    `json:"receiver"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	SenderName   string    `json:"senderName,omitempty"`
	ReceiverName string    `json:"receiverName,omitempty"`
}

func FromMessage(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:           m.ID,
		Sender:       m.Sender,
		Receiver:     m.Receiver,
		Message:      m.Content,
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt,
		SenderName:   m.SenderName,
		ReceiverName: m.ReceiverName,
	}
}

func NewOnlineUsers(users []string) Outbound {
	if users == nil {
		users = []string{}
	}
	return Outbound{Event: OnlineUsers, Data: users}
}

func NewReceiveMessage(m domain.Message) Outbound {
	return Outbound{Event: ReceiveMessage, Data: FromMessage(m)}
}

func NewMessageSent(m domain.Message) Outbound {
	return Outbound{Event: MessageSent, Data: FromMessage(m)}
}

func NewTyping(senderID string) Outbound {
	return Outbound{Event: Typing, Data: senderID}
}

func NewMessageSeen(messageID string) Outbound {
	return Outbound{Event: MessageSeenEvent, Data: MessageSeenPayload{MessageID: messageID}}
}

func NewPreviousMessages(messages []domain.Message) Outbound {
	payloads := lo.Map(messages, func(m domain.Message, _ int) MessagePayload {
		return FromMessage(m)
	})
	return Outbound{Event: PreviousMessages, Data: payloads}
}

func NewMessageError(event, receiverID string, err error) Outbound {
	return Outbound{Event: MessageError, Data: MessageErrorPayload{
		Event:      event,
		ReceiverID: receiverID,
		Error:      err.Error(),
	}}
}
