package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "messages"
	usersCollection    = "users"
	mongoWriteTimeout  = 3 * time.Second
	mongoReadTimeout   = 5 * time.Second
)

// MongoMessageRepository stores messages in the "messages" collection.
// Status writes are conditional updates filtered on the lower statuses, so a
// single document update is the whole forward-only check.
type MongoMessageRepository struct {
	log              *slog.Logger
	msgColl          *mongo.Collection
	identities       contract.IIdentityLookup
	maxContentLength int
	clock            *clock
}

var _ contract.IMessageRepository = (*MongoMessageRepository)(nil)

func NewMongoMessageRepository(ctx context.Context, db *mongo.Database, log *slog.Logger,
	identities contract.IIdentityLookup, maxContentLength int) (*MongoMessageRepository, error) {
	r := &MongoMessageRepository{
		log:              log,
		msgColl:          db.Collection(messagesCollection),
		identities:       identities,
		maxContentLength: maxContentLength,
		clock:            newClock(time.Millisecond),
	}
	ctx, cancel := context.WithTimeout(ctx, mongoWriteTimeout)
	defer cancel()
	_, err := r.msgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create message indexes: %w", err)
	}
	return r, nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, sender, receiver, content string) (domain.Message, error) {
	trimmed, err := validateAppend(ctx, r.identities, sender, receiver, content, r.maxContentLength)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   trimmed,
		Status:    domain.StatusSent,
		CreatedAt: r.clock.Next(),
	}

	ctx, cancel := context.WithTimeout(ctx, mongoWriteTimeout)
	defer cancel()
	if _, err = r.msgColl.InsertOne(ctx, toMessageDocument(message)); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

func (r *MongoMessageRepository) FindPending(ctx context.Context, receiver string) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoReadTimeout)
	defer cancel()

	filter := bson.M{"receiver": receiver, "status": string(domain.StatusSent)}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.msgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending for %s: %w", receiver, err)
	}
	var docs []messageDocument
	if err = cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode pending for %s: %w", receiver, err)
	}
	return lo.Map(docs, func(d messageDocument, _ int) domain.Message {
		return fromMessageDocument(d)
	}), nil
}

type conversationDocument struct {
	messageDocument `bson:",inline"`
	SenderUser      []userDocument `bson:"senderUser"`
	ReceiverUser    []userDocument `bson:"receiverUser"`
}

// FindConversation joins both parties against the users collection.
func (r *MongoMessageRepository) FindConversation(ctx context.Context, userID string) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{bson.M{"sender": userID}, bson.M{"receiver": userID}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{"from": usersCollection, "localField": "sender", "foreignField": "_id", "as": "senderUser"}}},
		{{Key: "$lookup", Value: bson.M{"from": usersCollection, "localField": "receiver", "foreignField": "_id", "as": "receiverUser"}}},
	}
	cur, err := r.msgColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("find conversation for %s: %w", userID, err)
	}
	var docs []conversationDocument
	if err = cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversation for %s: %w", userID, err)
	}
	return lo.Map(docs, func(d conversationDocument, _ int) domain.Message {
		message := fromMessageDocument(d.messageDocument)
		if len(d.SenderUser) > 0 {
			message.SenderName = d.SenderUser[0].Name
		}
		if len(d.ReceiverUser) > 0 {
			message.ReceiverName = d.ReceiverUser[0].Name
		}
		return message
	}), nil
}

func (r *MongoMessageRepository) FindByID(ctx context.Context, id string) (domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoReadTimeout)
	defer cancel()

	var doc messageDocument
	err := r.msgColl.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("read message %s: %w", id, err)
	}
	return fromMessageDocument(doc), nil
}

func (r *MongoMessageRepository) MarkStatus(ctx context.Context, id string, status domain.Status) (domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoWriteTimeout)
	defer cancel()

	var doc messageDocument
	filter := bson.M{"_id": id, "status": bson.M{"$in": lowerStatuses(status)}}
	update := bson.M{"$set": bson.M{"status": string(status)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.msgColl.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return fromMessageDocument(doc), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Message{}, fmt.Errorf("mark message %s %s: %w", id, status, err)
	}

	// Nothing matched: either unknown, or already at or past status
	err = r.msgColl.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("read message %s: %w", id, err)
	}
	return fromMessageDocument(doc), nil
}

func (r *MongoMessageRepository) MarkManyStatus(ctx context.Context, ids []string, status domain.Status) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mongoWriteTimeout)
	defer cancel()

	filter := bson.M{"_id": bson.M{"$in": lo.Uniq(ids)}, "status": bson.M{"$in": lowerStatuses(status)}}
	update := bson.M{"$set": bson.M{"status": string(status)}}
	result, err := r.msgColl.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark %d messages %s: %w", len(ids), status, err)
	}
	r.log.Debug("Bulk status update", "status", status, "requested", len(ids), "modified", result.ModifiedCount)
	return nil
}

func lowerStatuses(status domain.Status) []string {
	return lo.Map(status.Below(), func(s domain.Status, _ int) string { return string(s) })
}
