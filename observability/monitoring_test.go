package observability

import (
	"context"
	"fmt"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_CountsEvents(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())
	ctx := context.Background()

	for _, e := range []event.DomainEvent{
		event.MessageStored{},
		event.MessageStored{},
		event.MessageDelivered{},
		event.MessageDelivered{Replayed: true},
		event.MessageSeen{},
		event.PresenceChanged{UserID: "alice", IsOnline: true},
	} {
		req.NoError(mm.Consume(ctx, e))
	}

	stats := mm.Refresh()
	req.Equal(uint64(2), stats.MessagesStored)
	req.Equal(uint64(2), stats.MessagesDelivered)
	req.Equal(uint64(1), stats.MessagesReplayed)
	req.Equal(uint64(1), stats.MessagesSeen)
	req.Equal(uint64(1), stats.PresenceChanges)
}

func TestMonitoringManager_RecordFrame(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	mm.RecordFrame(nil)
	mm.RecordFrame(errors.ErrRateLimited)
	mm.RecordFrame(fmt.Errorf("%w: bad", errors.ErrMalformedEvent))
	mm.RecordFrame(errors.ErrUnidentifiedConnection)
	mm.RecordFrame(fmt.Errorf("append: %w", errors.ErrStoreUnavailable))

	stats := mm.Refresh()
	req.Equal(uint64(1), stats.FramesHandled)
	req.Equal(uint64(1), stats.FramesRateLimited)
	req.Equal(uint64(2), stats.FramesRejected)
	req.Equal(uint64(1), stats.EventErrors)
}

func TestMonitoringManager_Gauges(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())
	online := int64(3)
	mm.RegisterGauge("online_users", func() int64 { return online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mm.Listen(ctx, 5*time.Millisecond)

	req.Eventually(func() bool { return mm.GetLatest().Gauges["online_users"] == 3 }, time.Second, 5*time.Millisecond)
	req.Greater(mm.GetLatest().NumGoroutines, 0)
}

func TestMonitoringManager_RecordChannel(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	mm.RecordChannel("domain_events", 10, 1024)

	req.Equal(ChannelCapacity{Length: 10, Capacity: 1024}, mm.Refresh().Channels["domain_events"])
}

func TestMonitoringManager_SamplesOwnProcess(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	stats := mm.Refresh()

	req.NotNil(mm.self)
	req.NotEmpty(stats.ProcessStatus)
	req.GreaterOrEqual(stats.ProcessCPUPercent, 0.0)
}
