package services

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/errors"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

type IDeliveryService interface {
	OnConnect(ctx context.Context, userID string) ([]domain.Message, error)
	OnSend(ctx context.Context, sender, receiver, content string) (SendResult, error)
	OnRead(ctx context.Context, messageID, readerID, notifyUserID string) (domain.Message, error)
	History(ctx context.Context, userID string) ([]domain.Message, error)
}

// SendResult tells the caller whether the message must be pushed live.
type SendResult struct {
	Message   domain.Message
	Delivered bool
}

// DeliveryService owns the sent -> delivered -> seen state machine.
// It persists first and never pushes anything itself; pushing is the session's job.
type DeliveryService struct {
	log        *slog.Logger
	repository contract.IMessageRepository
	registry   contract.IRegistry
	events     chan<- event.DomainEvent
}

var _ IDeliveryService = (*DeliveryService)(nil)

func NewDeliveryService(log *slog.Logger, repository contract.IMessageRepository,
	registry contract.IRegistry, events chan<- event.DomainEvent) *DeliveryService {
	return &DeliveryService{log: log, repository: repository, registry: registry, events: events}
}

// OnConnect replays the backlog of a user who just announced itself.
// The returned messages carry the delivered status. When the bulk update fails
// they are still returned, with the error, so the caller pushes them anyway;
// they stay sent and are replayed again on the next connect.
func (s *DeliveryService) OnConnect(ctx context.Context, userID string) ([]domain.Message, error) {
	pending, err := s.repository.FindPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("backlog of %s: %w", userID, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := lo.Map(pending, func(m domain.Message, _ int) string { return m.ID })
	delivered := lo.Map(pending, func(m domain.Message, _ int) domain.Message {
		return m.WithStatus(domain.StatusDelivered)
	})
	if err = s.repository.MarkManyStatus(ctx, ids, domain.StatusDelivered); err != nil {
		return delivered, fmt.Errorf("mark backlog of %s delivered: %w", userID, err)
	}

	now := time.Now().UTC()
	for _, m := range delivered {
		s.publish(event.MessageDelivered{MessageID: m.ID, Sender: m.Sender, Receiver: m.Receiver, Replayed: true, At: now})
	}
	return delivered, nil
}

// OnSend persists the message, then decides live delivery from the receiver's
// presence, evaluated exactly once. A failed delivered write is logged only:
// the message is pushed anyway and a later read still moves it forward.
func (s *DeliveryService) OnSend(ctx context.Context, sender, receiver, content string) (SendResult, error) {
	message, err := s.repository.Append(ctx, sender, receiver, content)
	if err != nil {
		return SendResult{}, err
	}
	s.publish(event.MessageStored{Message: message})

	if !s.registry.IsOnline(receiver) {
		return SendResult{Message: message}, nil
	}

	if _, err = s.repository.MarkStatus(ctx, message.ID, domain.StatusDelivered); err != nil {
		s.log.Error("Failed to mark live message delivered", "message_id", message.ID, "receiver", receiver, "error", err)
	}
	message = message.WithStatus(domain.StatusDelivered)
	s.publish(event.MessageDelivered{MessageID: message.ID, Sender: sender, Receiver: receiver, At: time.Now().UTC()})
	return SendResult{Message: message, Delivered: true}, nil
}

// OnRead marks the message seen. Only its receiver may read it, and
// notifyUserID, who the client claims sent it, must match the stored sender.
// Nothing is written when either check fails.
// Reading an already seen message succeeds again.
func (s *DeliveryService) OnRead(ctx context.Context, messageID, readerID, notifyUserID string) (domain.Message, error) {
	stored, err := s.repository.FindByID(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if stored.Receiver != readerID {
		return domain.Message{}, fmt.Errorf("%w: message %s is addressed to %q, not %q",
			errors.ErrIdentityMismatch, messageID, stored.Receiver, readerID)
	}
	if stored.Sender != notifyUserID {
		return domain.Message{}, fmt.Errorf("%w: message %s was sent by %q, not %q",
			errors.ErrIdentityMismatch, messageID, stored.Sender, notifyUserID)
	}

	message, err := s.repository.MarkStatus(ctx, messageID, domain.StatusSeen)
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(event.MessageSeen{MessageID: message.ID, Sender: message.Sender, Receiver: message.Receiver, At: time.Now().UTC()})
	return message, nil
}

func (s *DeliveryService) History(ctx context.Context, userID string) ([]domain.Message, error) {
	return s.repository.FindConversation(ctx, userID)
}

func (s *DeliveryService) publish(evt event.DomainEvent) {
	if s.events == nil {
		return
	}
	if !event.TryPublish(s.events, evt) {
		s.log.Warn("Domain event dropped, fan-out channel full", "event", evt.Name())
	}
}
