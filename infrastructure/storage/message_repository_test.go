package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupRepositories(t *testing.T, users ...string) (*MessageRepository, *UserRepository) {
	t.Helper()
	db := openBadger(t)
	userRepository := NewUserRepository(db)
	for _, user := range users {
		require.NoError(t, userRepository.CreateUser(context.Background(), user, "Name of "+user))
	}
	return NewMessageRepository(db, slog.Default(), userRepository, 100), userRepository
}

func TestMessageRepository_Append_PersistsAsSent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob")

	// When alice writes to bob
	message, err := repository.Append(ctx, "alice", "bob", "  printer is on fire  ")
	req.NoError(err)

	// Then the message is stored trimmed and sent
	req.NotEmpty(message.ID)
	req.Equal(domain.StatusSent, message.Status)
	req.Equal("printer is on fire", message.Content)
	stored, err := repository.Get(message.ID)
	req.NoError(err)
	req.Equal(message, stored)
}

func TestMessageRepository_Append_RejectsWithoutPersisting(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob")

	_, err := repository.Append(ctx, "alice", "", "hello")
	req.ErrorIs(err, errors.ErrInvalidIdentity)

	_, err = repository.Append(ctx, "alice", "mallory", "hello")
	req.ErrorIs(err, errors.ErrInvalidIdentity)

	_, err = repository.Append(ctx, "alice", "bob", "   ")
	req.ErrorIs(err, errors.ErrInvalidContent)

	all, err := repository.All()
	req.NoError(err)
	req.Empty(all)
}

func TestMessageRepository_FindPending_OldestFirstAndOnlySent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob", "carol")

	// Given three messages to bob and one to carol
	var ids []string
	for i := 1; i <= 3; i++ {
		message, err := repository.Append(ctx, "alice", "bob", fmt.Sprintf("m%d", i))
		req.NoError(err)
		ids = append(ids, message.ID)
	}
	_, err := repository.Append(ctx, "alice", "carol", "other")
	req.NoError(err)

	// When the second one is delivered
	_, err = repository.MarkStatus(ctx, ids[1], domain.StatusDelivered)
	req.NoError(err)

	// Then only the remaining sent ones are pending, in order
	pending, err := repository.FindPending(ctx, "bob")
	req.NoError(err)
	req.Equal([]string{ids[0], ids[2]}, lo.Map(pending, func(m domain.Message, _ int) string { return m.ID }))
	req.Equal([]string{"m1", "m3"}, lo.Map(pending, func(m domain.Message, _ int) string { return m.Content }))
}

func TestMessageRepository_MarkStatus_IsMonotonic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob")
	message, err := repository.Append(ctx, "alice", "bob", "hello")
	req.NoError(err)

	// seen before delivered: the late delivered write must not regress it
	seen, err := repository.MarkStatus(ctx, message.ID, domain.StatusSeen)
	req.NoError(err)
	req.Equal(domain.StatusSeen, seen.Status)

	late, err := repository.MarkStatus(ctx, message.ID, domain.StatusDelivered)
	req.NoError(err)
	req.Equal(domain.StatusSeen, late.Status)

	again, err := repository.MarkStatus(ctx, message.ID, domain.StatusSeen)
	req.NoError(err)
	req.Equal(domain.StatusSeen, again.Status)

	pending, err := repository.FindPending(ctx, "bob")
	req.NoError(err)
	req.Empty(pending)
}

func TestMessageRepository_MarkStatus_UnknownMessage(t *testing.T) {
	req := require.New(t)
	repository, _ := setupRepositories(t)

	_, err := repository.MarkStatus(context.Background(), "does-not-exist", domain.StatusSeen)
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageRepository_MarkManyStatus(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob")

	first, err := repository.Append(ctx, "alice", "bob", "one")
	req.NoError(err)
	second, err := repository.Append(ctx, "alice", "bob", "two")
	req.NoError(err)
	_, err = repository.MarkStatus(ctx, second.ID, domain.StatusSeen)
	req.NoError(err)

	// When both plus an unknown id are marked delivered
	err = repository.MarkManyStatus(ctx, []string{first.ID, second.ID, "ghost"}, domain.StatusDelivered)
	req.NoError(err)

	// Then the sent one advanced and the seen one kept its status
	stored, err := repository.Get(first.ID)
	req.NoError(err)
	req.Equal(domain.StatusDelivered, stored.Status)
	stored, err = repository.Get(second.ID)
	req.NoError(err)
	req.Equal(domain.StatusSeen, stored.Status)

	// And applying it twice is harmless
	req.NoError(repository.MarkManyStatus(ctx, []string{first.ID}, domain.StatusDelivered))
}

func TestMessageRepository_FindConversation_AnnotatedAndOrdered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob", "carol")

	_, err := repository.Append(ctx, "alice", "bob", "hi bob")
	req.NoError(err)
	_, err = repository.Append(ctx, "bob", "alice", "hi alice")
	req.NoError(err)
	_, err = repository.Append(ctx, "carol", "bob", "not for alice")
	req.NoError(err)
	_, err = repository.Append(ctx, "alice", "alice", "note to self")
	req.NoError(err)

	conversation, err := repository.FindConversation(ctx, "alice")
	req.NoError(err)
	req.Equal([]string{"hi bob", "hi alice", "note to self"},
		lo.Map(conversation, func(m domain.Message, _ int) string { return m.Content }))
	req.Equal("Name of alice", conversation[0].SenderName)
	req.Equal("Name of bob", conversation[0].ReceiverName)
	req.Equal("Name of bob", conversation[1].SenderName)
}

func TestMessageRepository_ConcurrentAppendsKeepPerPairOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob")
	nbMessages := 50

	// Given a burst of appends from several goroutines
	var wg sync.WaitGroup
	for i := 0; i < nbMessages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repository.Append(ctx, "alice", "bob", fmt.Sprintf("m%d", i))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Then pending order follows creation time strictly
	pending, err := repository.FindPending(ctx, "bob")
	req.NoError(err)
	req.Len(pending, nbMessages)
	for i := 1; i < len(pending); i++ {
		req.True(pending[i].CreatedAt.After(pending[i-1].CreatedAt))
	}
}

func TestMessageRepository_FindByID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, _ := setupRepositories(t, "alice", "bob")
	message, err := repository.Append(ctx, "alice", "bob", "hello")
	req.NoError(err)

	found, err := repository.FindByID(ctx, message.ID)
	req.NoError(err)
	req.Equal(message, found)

	_, err = repository.FindByID(ctx, "ghost")
	req.ErrorIs(err, errors.ErrMessageNotFound)
}
