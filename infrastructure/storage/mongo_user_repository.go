package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUserRepository struct {
	userColl *mongo.Collection
}

var _ contract.IIdentityLookup = (*MongoUserRepository)(nil)

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{userColl: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) CreateUser(ctx context.Context, id, name string) error {
	if err := domain.ValidateIdentity(id); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, mongoWriteTimeout)
	defer cancel()
	_, err := r.userColl.InsertOne(ctx, userDocument{ID: id, Name: name, CreatedAt: time.Now().UTC()})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", errors.ErrUserAlreadyExists, id)
	}
	return err
}

func (r *MongoUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoReadTimeout)
	defer cancel()
	count, err := r.userColl.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count user %s: %w", id, err)
	}
	return count > 0, nil
}

func (r *MongoUserRepository) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoReadTimeout)
	defer cancel()
	opts := options.Find().SetProjection(bson.M{"name": 1})
	cur, err := r.userColl.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var docs []userDocument
	if err = cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	names := make(map[string]string, len(docs))
	for _, doc := range docs {
		names[doc.ID] = doc.Name
	}
	return names, nil
}
