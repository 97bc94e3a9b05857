package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerRepository guards a message store with a circuit breaker.
// Infrastructure failures surface as ErrStoreUnavailable; domain errors pass
// through untouched and never trip the breaker.
type BreakerRepository struct {
	next contract.IMessageRepository
	cb   *gobreaker.CircuitBreaker
	log  *slog.Logger
}

var _ contract.IMessageRepository = (*BreakerRepository)(nil)

func NewBreakerRepository(next contract.IMessageRepository, log *slog.Logger,
	maxFailures uint32, openTimeout time.Duration) *BreakerRepository {
	settings := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsDomain(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerRepository{next: next, cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

func (b *BreakerRepository) State() gobreaker.State { return b.cb.State() }

// Available is false while the breaker is open.
func (b *BreakerRepository) Available() bool { return b.cb.State() != gobreaker.StateOpen }

func execute[T any](b *BreakerRepository, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	switch {
	case err == nil:
		return result.(T), nil
	case errors.IsDomain(err):
		return zero, err
	default:
		return zero, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
}

func (b *BreakerRepository) Append(ctx context.Context, sender, receiver, content string) (domain.Message, error) {
	return execute(b, func() (domain.Message, error) {
		return b.next.Append(ctx, sender, receiver, content)
	})
}

func (b *BreakerRepository) FindPending(ctx context.Context, receiver string) ([]domain.Message, error) {
	return execute(b, func() ([]domain.Message, error) {
		return b.next.FindPending(ctx, receiver)
	})
}

func (b *BreakerRepository) FindConversation(ctx context.Context, userID string) ([]domain.Message, error) {
	return execute(b, func() ([]domain.Message, error) {
		return b.next.FindConversation(ctx, userID)
	})
}

func (b *BreakerRepository) FindByID(ctx context.Context, id string) (domain.Message, error) {
	return execute(b, func() (domain.Message, error) {
		return b.next.FindByID(ctx, id)
	})
}

func (b *BreakerRepository) MarkStatus(ctx context.Context, id string, status domain.Status) (domain.Message, error) {
	return execute(b, func() (domain.Message, error) {
		return b.next.MarkStatus(ctx, id, status)
	})
}

func (b *BreakerRepository) MarkManyStatus(ctx context.Context, ids []string, status domain.Status) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.next.MarkManyStatus(ctx, ids, status)
	})
	return err
}
