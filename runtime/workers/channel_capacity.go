package workers

import (
	"context"
	"helpdesk-chat/contract"
	"log/slog"
	"reflect"
	"time"
)

// saturationRatio above which a channel is reported as saturated.
const saturationRatio = 0.8

type NamedChannel struct {
	Name    string
	Channel any
}

type capacityRecorder interface {
	RecordChannel(name string, length, capacity int)
}

// ChannelCapacityWorker periodically reports the current channel capacity and length.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with other goroutines.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	recorder       capacityRecorder
	metricInterval time.Duration
}

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, recorder capacityRecorder,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log: log, channels: channels,
		recorder:       recorder,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		// Verify if this is a channel
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.recorder.RecordChannel(nc.Name, length, capacity)
		if capacity > 0 && float64(length) >= saturationRatio*float64(capacity) {
			w.log.Warn("Channel close to saturation", "name", nc.Name, "length", length, "capacity", capacity)
		}
	}
}
