package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"helpdesk-chat/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBreakerRepository_OpensAfterConsecutiveFailures(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	next := mocks.NewMockIMessageRepository(ctrl)
	breaker := NewBreakerRepository(next, slog.Default(), 2, time.Minute)

	// Given a backend failing twice
	next.EXPECT().
		FindPending(gomock.Any(), "bob").
		Return(nil, fmt.Errorf("connection refused")).
		Times(2)

	for i := 0; i < 2; i++ {
		_, err := breaker.FindPending(ctx, "bob")
		req.ErrorIs(err, errors.ErrStoreUnavailable)
	}

	// Then the breaker is open and the backend is no longer called
	req.Equal(gobreaker.StateOpen, breaker.State())
	req.False(breaker.Available())
	_, err := breaker.FindPending(ctx, "bob")
	req.ErrorIs(err, errors.ErrStoreUnavailable)
}

func TestBreakerRepository_DomainErrorsDoNotTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	next := mocks.NewMockIMessageRepository(ctrl)
	breaker := NewBreakerRepository(next, slog.Default(), 1, time.Minute)

	next.EXPECT().
		MarkStatus(gomock.Any(), "ghost", domain.StatusSeen).
		Return(domain.Message{}, fmt.Errorf("%w: ghost", errors.ErrMessageNotFound)).
		Times(3)

	for i := 0; i < 3; i++ {
		_, err := breaker.MarkStatus(ctx, "ghost", domain.StatusSeen)
		req.ErrorIs(err, errors.ErrMessageNotFound)
		req.NotErrorIs(err, errors.ErrStoreUnavailable)
	}
	req.Equal(gobreaker.StateClosed, breaker.State())
}

func TestBreakerRepository_PassesResultsThrough(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	next := mocks.NewMockIMessageRepository(ctrl)
	breaker := NewBreakerRepository(next, slog.Default(), 1, time.Minute)
	message := domain.Message{ID: "1", Sender: "alice", Receiver: "bob", Content: "hi", Status: domain.StatusSent}

	next.EXPECT().Append(gomock.Any(), "alice", "bob", "hi").Return(message, nil)
	next.EXPECT().MarkManyStatus(gomock.Any(), []string{"1"}, domain.StatusDelivered).Return(nil)
	next.EXPECT().FindConversation(gomock.Any(), "alice").Return(nil, nil)
	next.EXPECT().FindByID(gomock.Any(), "ghost").Return(domain.Message{}, errors.ErrMessageNotFound)

	appended, err := breaker.Append(ctx, "alice", "bob", "hi")
	req.NoError(err)
	req.Equal(message, appended)
	req.NoError(breaker.MarkManyStatus(ctx, []string{"1"}, domain.StatusDelivered))
	conversation, err := breaker.FindConversation(ctx, "alice")
	req.NoError(err)
	req.Empty(conversation)
	_, err = breaker.FindByID(ctx, "ghost")
	req.ErrorIs(err, errors.ErrMessageNotFound)
	req.NotErrorIs(err, errors.ErrStoreUnavailable)
}
