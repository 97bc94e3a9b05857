package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	maxTxnAttempts = 5
	bulkChunkSize  = 256
)

// MessageRepository is the embedded badger message store.
//
// Keys:
//   - "msg:{id}" holds the encoded message
//   - "pending:{receiver}:{nanos}:{id}" exists while the message is still sent
//   - "conv:{user}:{nanos}:{id}" for both parties of the message
//
// The 19-digit zero padded timestamp keeps prefix scans in chronological order.
type MessageRepository struct {
	db               *badger.DB
	log              *slog.Logger
	identities       contract.IIdentityLookup
	maxContentLength int
	clock            *clock
}

var _ contract.IMessageRepository = (*MessageRepository)(nil)

func NewMessageRepository(db *badger.DB, log *slog.Logger, identities contract.IIdentityLookup, maxContentLength int) *MessageRepository {
	return &MessageRepository{
		db:               db,
		log:              log,
		identities:       identities,
		maxContentLength: maxContentLength,
		clock:            newClock(time.Nanosecond),
	}
}

func messageKey(id string) []byte {
	return []byte("msg:" + id)
}

func pendingKey(r messageRecord) []byte {
	return []byte(fmt.Sprintf("pending:%s:%019d:%s", r.Receiver, r.CreatedAt, r.ID))
}

func conversationKey(user string, r messageRecord) []byte {
	return []byte(fmt.Sprintf("conv:%s:%019d:%s", user, r.CreatedAt, r.ID))
}

// Append validates the parties and the content, then persists the message as sent.
// Nothing is written when validation fails.
func (m *MessageRepository) Append(ctx context.Context, sender, receiver, content string) (domain.Message, error) {
	trimmed, err := validateAppend(ctx, m.identities, sender, receiver, content, m.maxContentLength)
	if err != nil {
		return domain.Message{}, err
	}

	message := domain.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   trimmed,
		Status:    domain.StatusSent,
		CreatedAt: m.clock.Next(),
	}
	record := fromMessage(message)
	bytes, err := encodeRecord(record)
	if err != nil {
		return domain.Message{}, err
	}

	err = m.update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(record.ID), bytes); err != nil {
			return err
		}
		if err := txn.Set(pendingKey(record), nil); err != nil {
			return err
		}
		if err := txn.Set(conversationKey(record.Sender, record), nil); err != nil {
			return err
		}
		return txn.Set(conversationKey(record.Receiver, record), nil)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// FindPending returns the messages still sent to receiver, oldest first.
func (m *MessageRepository) FindPending(_ context.Context, receiver string) ([]domain.Message, error) {
	messages, err := m.scan(fmt.Sprintf("pending:%s:", receiver))
	if err != nil {
		return nil, fmt.Errorf("find pending for %s: %w", receiver, err)
	}
	return lo.Filter(messages, func(msg domain.Message, _ int) bool {
		return msg.Status == domain.StatusSent
	}), nil
}

// FindConversation returns every message the user sent or received, oldest first,
// annotated with both display names.
func (m *MessageRepository) FindConversation(ctx context.Context, userID string) ([]domain.Message, error) {
	messages, err := m.scan(fmt.Sprintf("conv:%s:", userID))
	if err != nil {
		return nil, fmt.Errorf("find conversation for %s: %w", userID, err)
	}
	if m.identities == nil || len(messages) == 0 {
		return messages, nil
	}
	ids := lo.Uniq(lo.FlatMap(messages, func(msg domain.Message, _ int) []string {
		return []string{msg.Sender, msg.Receiver}
	}))
	names, err := m.identities.DisplayNames(ctx, ids)
	if err != nil {
		m.log.Warn("Display names unavailable, conversation returned without names", "user_id", userID, "error", err)
		return messages, nil
	}
	return annotate(messages, names), nil
}

// MarkStatus advances one message. Backward or equal transitions leave it untouched
// and still return the stored message.
func (m *MessageRepository) MarkStatus(_ context.Context, id string, status domain.Status) (domain.Message, error) {
	var stored domain.Message
	err := m.update(func(txn *badger.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		record, err = advance(txn, record, status)
		if err != nil {
			return err
		}
		stored = toMessage(record)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

// MarkManyStatus advances every known message; unknown ids are skipped.
func (m *MessageRepository) MarkManyStatus(_ context.Context, ids []string, status domain.Status) error {
	for _, chunk := range lo.Chunk(lo.Uniq(ids), bulkChunkSize) {
		err := m.update(func(txn *badger.Txn) error {
			for _, id := range chunk {
				record, err := getRecord(txn, id)
				if errors.Is(err, errors.ErrMessageNotFound) {
					m.log.Debug("Skipping unknown message in bulk update", "message_id", id)
					continue
				}
				if err != nil {
					return err
				}
				if _, err = advance(txn, record, status); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("mark %d messages %s: %w", len(chunk), status, err)
		}
	}
	return nil
}

func (m *MessageRepository) FindByID(_ context.Context, id string) (domain.Message, error) {
	return m.Get(id)
}

// Get returns one message by id.
func (m *MessageRepository) Get(id string) (domain.Message, error) {
	var stored domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		stored = toMessage(record)
		return nil
	})
	return stored, err
}

// All lists every stored message in key order, used by the inspector.
func (m *MessageRepository) All() ([]domain.Message, error) {
	var messages []domain.Message
	prefix := []byte("msg:")
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				record, err := decodeRecord(value)
				if err != nil {
					return err
				}
				messages = append(messages, toMessage(record))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// scan walks an index prefix and resolves every entry to its message.
// The id is the last key segment.
func (m *MessageRepository) scan(prefixStr string) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := []byte(prefixStr)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := key[len(prefixStr)+20:]
			record, err := getRecord(txn, id)
			if errors.Is(err, errors.ErrMessageNotFound) {
				m.log.Warn("Dangling index entry", "key", key)
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, toMessage(record))
		}
		return nil
	})
	return messages, err
}

func (m *MessageRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		err = m.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		m.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func getRecord(txn *badger.Txn, id string) (messageRecord, error) {
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return messageRecord{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return messageRecord{}, err
	}
	var record messageRecord
	err = item.Value(func(value []byte) error {
		record, err = decodeRecord(value)
		return err
	})
	return record, err
}

// advance applies the forward-only rule inside the transaction and keeps the
// pending index in sync with the sent status.
func advance(txn *badger.Txn, record messageRecord, status domain.Status) (messageRecord, error) {
	current := domain.Status(record.Status)
	if !current.CanAdvanceTo(status) {
		return record, nil
	}
	if current == domain.StatusSent {
		if err := txn.Delete(pendingKey(record)); err != nil {
			return record, err
		}
	}
	record.Status = string(status)
	bytes, err := encodeRecord(record)
	if err != nil {
		return record, err
	}
	return record, txn.Set(messageKey(record.ID), bytes)
}

// validateAppend is shared by every backend so they reject the same inputs.
func validateAppend(ctx context.Context, identities contract.IIdentityLookup,
	sender, receiver, content string, maxContentLength int) (string, error) {
	for _, id := range []string{sender, receiver} {
		if err := domain.ValidateIdentity(id); err != nil {
			return "", err
		}
	}
	trimmed, err := domain.NormalizeContent(content, maxContentLength)
	if err != nil {
		return "", err
	}
	if identities == nil {
		return trimmed, nil
	}
	for _, id := range lo.Uniq([]string{sender, receiver}) {
		exists, err := identities.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("identity lookup for %s: %w", id, err)
		}
		if !exists {
			return "", fmt.Errorf("%w: unknown user %q", errors.ErrInvalidIdentity, id)
		}
	}
	return trimmed, nil
}
