package storage

import (
	"context"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Runs against a real server only when MONGO_TEST_URI is set.
func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("helpdesk_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoMessageRepository_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := setupMongo(t)
	users := NewMongoUserRepository(db)
	req.NoError(users.CreateUser(ctx, "alice", "Alice"))
	req.NoError(users.CreateUser(ctx, "bob", "Bob"))
	repository, err := NewMongoMessageRepository(ctx, db, slog.Default(), users, 100)
	req.NoError(err)

	first, err := repository.Append(ctx, "alice", "bob", "first")
	req.NoError(err)
	second, err := repository.Append(ctx, "alice", "bob", "second")
	req.NoError(err)
	_, err = repository.Append(ctx, "alice", "nobody", "lost")
	req.ErrorIs(err, errors.ErrInvalidIdentity)

	pending, err := repository.FindPending(ctx, "bob")
	req.NoError(err)
	req.Len(pending, 2)
	req.Equal(first.ID, pending[0].ID)

	seen, err := repository.MarkStatus(ctx, second.ID, domain.StatusSeen)
	req.NoError(err)
	req.Equal(domain.StatusSeen, seen.Status)
	req.NoError(repository.MarkManyStatus(ctx, []string{first.ID, second.ID}, domain.StatusDelivered))

	stillSeen, err := repository.MarkStatus(ctx, second.ID, domain.StatusDelivered)
	req.NoError(err)
	req.Equal(domain.StatusSeen, stillSeen.Status)

	_, err = repository.MarkStatus(ctx, "ghost", domain.StatusSeen)
	req.ErrorIs(err, errors.ErrMessageNotFound)

	conversation, err := repository.FindConversation(ctx, "bob")
	req.NoError(err)
	req.Len(conversation, 2)
	req.Equal("Alice", conversation[0].SenderName)
	req.Equal("Bob", conversation[0].ReceiverName)
	req.Equal(domain.StatusDelivered, conversation[0].Status)
}
