package workers

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capacity struct {
	length, capacity int
}

type capacityRecording map[string]capacity

func (c capacityRecording) RecordChannel(name string, length, cap int) {
	c[name] = capacity{length: length, capacity: cap}
}

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	events := make(chan int, 4)
	events <- 1
	events <- 2
	recording := capacityRecording{}
	worker := NewChannelCapacityWorker(slog.Default(), []NamedChannel{
		{Name: "events", Channel: events},
		{Name: "not a channel", Channel: 42},
	}, recording, time.Second)

	worker.sample()

	req.Equal(capacityRecording{"events": {length: 2, capacity: 4}}, recording)
}
