package sink

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type presenceClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// PresenceSink mirrors presence into redis for dashboards and other services.
// It is write-only: the in-process registry stays the source of truth.
//
// Keys used:
//   - <prefix>:online: set of online user ids
//   - <prefix>:last_seen: hash user id -> unix seconds of the last change
type PresenceSink struct {
	log    *slog.Logger
	client presenceClient
	prefix string
}

var _ contract.EventSink = (*PresenceSink)(nil)

func NewPresenceSink(log *slog.Logger, client presenceClient, prefix string) *PresenceSink {
	return &PresenceSink{log: log, client: client, prefix: prefix}
}

func (p *PresenceSink) Name() string { return "redis_presence" }

func (p *PresenceSink) onlineKey() string   { return fmt.Sprintf("%s:online", p.prefix) }
func (p *PresenceSink) lastSeenKey() string { return fmt.Sprintf("%s:last_seen", p.prefix) }

func (p *PresenceSink) Consume(ctx context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.PresenceChanged)
	if !ok {
		return nil
	}

	var err error
	if evt.IsOnline {
		err = p.client.SAdd(ctx, p.onlineKey(), evt.UserID).Err()
	} else {
		err = p.client.SRem(ctx, p.onlineKey(), evt.UserID).Err()
	}
	if err != nil {
		return fmt.Errorf("mirror presence of %s: %w", evt.UserID, err)
	}
	if err = p.client.HSet(ctx, p.lastSeenKey(), evt.UserID, evt.At.Unix()).Err(); err != nil {
		return fmt.Errorf("mirror last seen of %s: %w", evt.UserID, err)
	}
	return nil
}
