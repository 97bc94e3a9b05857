//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"helpdesk-chat/domain"
	"helpdesk-chat/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is a permanent consumer of domain events (audit, broker, metrics).
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the handle of one live client connection.
// ID is stable for the lifetime of the connection and is the handle identity
// used by the presence registry. Send must not block on a slow peer.
type Connection interface {
	ID() string
	Send(evt event.Outbound) error
	Close() error
}

// IRegistry maps an identity to its current connection.
// At most one connection per identity, the last registration wins.
type IRegistry interface {
	Register(userID string, conn Connection)
	Unregister(userID string) bool
	UnregisterIfStillBound(userID string, conn Connection) bool
	IsOnline(userID string) bool
	Lookup(userID string) (Connection, bool)
	BoundUser(conn Connection) (string, bool)
	Snapshot() []string
}

// IMessageRepository is the durable message store.
// Every status write is forward-only and idempotent.
type IMessageRepository interface {
	Append(ctx context.Context, sender, receiver, content string) (domain.Message, error)
	FindPending(ctx context.Context, receiver string) ([]domain.Message, error)
	FindConversation(ctx context.Context, userID string) ([]domain.Message, error)
	FindByID(ctx context.Context, id string) (domain.Message, error)
	MarkStatus(ctx context.Context, id string, status domain.Status) (domain.Message, error)
	MarkManyStatus(ctx context.Context, ids []string, status domain.Status) error
}

// IIdentityLookup answers whether an identity exists and how it is displayed.
type IIdentityLookup interface {
	Exists(ctx context.Context, userID string) (bool, error)
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}
