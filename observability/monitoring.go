package observability

import (
	"context"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/errors"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats aggregates everything exposed on /debug/stats.
type MonitoringStats struct {
	// --- MESSAGE METRICS ---
	MessagesStored    uint64 `json:"messages_stored"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesReplayed  uint64 `json:"messages_replayed"`
	MessagesSeen      uint64 `json:"messages_seen"`

	// --- SESSION METRICS ---
	PresenceChanges   uint64 `json:"presence_changes"`
	FramesHandled     uint64 `json:"frames_handled"`
	FramesRejected    uint64 `json:"frames_rejected"`
	FramesRateLimited uint64 `json:"frames_rate_limited"`
	EventErrors       uint64 `json:"event_errors"`

	// --- GAUGES ---
	Gauges   map[string]int64           `json:"gauges"`
	Channels map[string]ChannelCapacity `json:"channels"`

	// --- SYSTEM METRICS ---
	AllocMemMb    uint64    `json:"alloc_mem_mb"`
	NumGC         uint32    `json:"num_gc"`
	NumGoroutines int       `json:"num_goroutines"`
	UpdatedAt     time.Time `json:"updated_at"`

	// --- PROCESS METRICS ---
	ProcessRSSMb      uint64  `json:"process_rss_mb"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessStatus     string  `json:"process_status"`
}

type ChannelCapacity struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
}

// Gauge reads a live value, like the number of online users.
type Gauge func() int64

// MonitoringManager counts domain events and transport frames.
// It is fed by the event fan-out as a sink and by the websocket transport.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	gauges      map[string]Gauge
	channels    map[string]ChannelCapacity
	self        *process.Process

	messagesStored    uint64
	messagesDelivered uint64
	messagesReplayed  uint64
	messagesSeen      uint64
	presenceChanges   uint64
	framesHandled     uint64
	framesRejected    uint64
	framesRateLimited uint64
	eventErrors       uint64
}

var _ contract.EventSink = (*MonitoringManager)(nil)

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		self = nil
	}
	return &MonitoringManager{
		log:      log,
		gauges:   make(map[string]Gauge),
		channels: make(map[string]ChannelCapacity),
		self:     self,
	}
}

func (mm *MonitoringManager) Name() string { return "monitoring" }

// RegisterGauge must be called before Listen starts.
func (mm *MonitoringManager) RegisterGauge(name string, gauge Gauge) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.gauges[name] = gauge
}

func (mm *MonitoringManager) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageStored:
		atomic.AddUint64(&mm.messagesStored, 1)
	case event.MessageDelivered:
		atomic.AddUint64(&mm.messagesDelivered, 1)
		if evt.Replayed {
			atomic.AddUint64(&mm.messagesReplayed, 1)
		}
	case event.MessageSeen:
		atomic.AddUint64(&mm.messagesSeen, 1)
	case event.PresenceChanged:
		atomic.AddUint64(&mm.presenceChanges, 1)
	}
	return nil
}

// RecordChannel keeps the last sample of a channel fill level.
func (mm *MonitoringManager) RecordChannel(name string, length, capacity int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.channels[name] = ChannelCapacity{Length: length, Capacity: capacity}
}

// RecordFrame counts one inbound frame and how it ended.
func (mm *MonitoringManager) RecordFrame(err error) {
	switch {
	case err == nil:
		atomic.AddUint64(&mm.framesHandled, 1)
	case errors.Is(err, errors.ErrRateLimited):
		atomic.AddUint64(&mm.framesRateLimited, 1)
	case errors.IsDomain(err), errors.Is(err, errors.ErrMalformedEvent), errors.Is(err, errors.ErrUnknownEvent),
		errors.Is(err, errors.ErrUnidentifiedConnection), errors.Is(err, errors.ErrSessionClosed),
		errors.Is(err, errors.ErrInvalidToken):
		atomic.AddUint64(&mm.framesRejected, 1)
	default:
		atomic.AddUint64(&mm.eventErrors, 1)
	}
}

// Listen refreshes the snapshot every interval until ctx is done.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mm.updateStats()
	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	stats := MonitoringStats{
		MessagesStored:    atomic.LoadUint64(&mm.messagesStored),
		MessagesDelivered: atomic.LoadUint64(&mm.messagesDelivered),
		MessagesReplayed:  atomic.LoadUint64(&mm.messagesReplayed),
		MessagesSeen:      atomic.LoadUint64(&mm.messagesSeen),
		PresenceChanges:   atomic.LoadUint64(&mm.presenceChanges),
		FramesHandled:     atomic.LoadUint64(&mm.framesHandled),
		FramesRejected:    atomic.LoadUint64(&mm.framesRejected),
		FramesRateLimited: atomic.LoadUint64(&mm.framesRateLimited),
		EventErrors:       atomic.LoadUint64(&mm.eventErrors),
		Gauges:            make(map[string]int64),
		NumGoroutines:     runtime.NumGoroutine(),
		UpdatedAt:         time.Now().UTC(),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	if mm.self != nil {
		rss, cpu, status, err := selfStats(mm.self)
		if err != nil {
			mm.log.Debug("Failed to collect self stats", "error", err)
		} else {
			stats.ProcessRSSMb = rss / 1024 / 1024
			stats.ProcessCPUPercent = cpu
			stats.ProcessStatus = status
		}
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	for name, gauge := range mm.gauges {
		stats.Gauges[name] = gauge()
	}
	stats.Channels = make(map[string]ChannelCapacity, len(mm.channels))
	for name, sample := range mm.channels {
		stats.Channels[name] = sample
	}
	mm.latestStats = stats
}

// selfStats reads memory, CPU and OS status of the server process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}

// GetLatest returns the last computed snapshot. Call Refresh first for an exact one.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

func (mm *MonitoringManager) Refresh() MonitoringStats {
	mm.updateStats()
	return mm.GetLatest()
}
