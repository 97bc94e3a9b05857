package storage

import (
	"fmt"
	"helpdesk-chat/domain"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// messageRecord is the badger value of a message.
// CreatedAt is kept in nanoseconds to match the index keys exactly.
type messageRecord struct {
	ID        string `bson:"_id"`
	Sender    string `bson:"sender"`
	Receiver  string `bson:"receiver"`
	Content   string `bson:"message"`
	Status    string `bson:"status"`
	CreatedAt int64  `bson:"createdAtNanos"`
}

// messageDocument is the MongoDB document of a message, field names follow
// the historical helpdesk collection.
type messageDocument struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	Receiver  string    `bson:"receiver"`
	Content   string    `bson:"message"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
}

type userDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"createdAt"`
}

func fromMessage(m domain.Message) messageRecord {
	return messageRecord{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt.UnixNano(),
	}
}

func toMessage(r messageRecord) domain.Message {
	return domain.Message{
		ID:        r.ID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Content:   r.Content,
		Status:    domain.Status(r.Status),
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

func encodeRecord(r messageRecord) ([]byte, error) {
	bytes, err := bson.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", r.ID, err)
	}
	return bytes, nil
}

func decodeRecord(bytes []byte) (messageRecord, error) {
	var r messageRecord
	if err := bson.Unmarshal(bytes, &r); err != nil {
		return messageRecord{}, fmt.Errorf("decode message: %w", err)
	}
	return r, nil
}

func fromMessageDocument(d messageDocument) domain.Message {
	return domain.Message{
		ID:        d.ID,
		Sender:    d.Sender,
		Receiver:  d.Receiver,
		Content:   d.Content,
		Status:    domain.Status(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func toMessageDocument(m domain.Message) messageDocument {
	return messageDocument{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

// annotate fills the display names of a conversation.
// Unknown identities keep an empty name.
func annotate(messages []domain.Message, names map[string]string) []domain.Message {
	for i := range messages {
		messages[i].SenderName = names[messages[i].Sender]
		messages[i].ReceiverName = names[messages[i].Receiver]
	}
	return messages
}

// DecodeMessage reads a raw "msg:" value, for inspection tools.
func DecodeMessage(value []byte) (domain.Message, error) {
	r, err := decodeRecord(value)
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(r), nil
}
