package storage

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// UserRepository is the badger identity directory.
// The chat core only reads it; users are seeded by the inspector.
type UserRepository struct {
	db *badger.DB
}

var _ contract.IIdentityLookup = (*UserRepository)(nil)

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

// CreateUser registers an identity with its display name.
func (u *UserRepository) CreateUser(_ context.Context, id, name string) error {
	if err := domain.ValidateIdentity(id); err != nil {
		return err
	}
	data, err := bson.Marshal(userDocument{ID: id, Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		key := userKey(id)
		if _, err = txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", errors.ErrUserAlreadyExists, id)
		}
		return txn.Set(key, data)
	})
}

func (u *UserRepository) Exists(_ context.Context, id string) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DisplayNames resolves the names of the given identities; unknown ones are absent.
func (u *UserRepository) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(userKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(value []byte) error {
				var doc userDocument
				if err := bson.Unmarshal(value, &doc); err != nil {
					return err
				}
				names[id] = doc.Name
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
