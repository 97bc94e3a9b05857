package workers

import (
	"context"
	"helpdesk-chat/contract"
	"log/slog"
	"time"
)

// Probe reports whether a dependency can serve traffic.
type Probe func() bool

type servingSetter interface {
	SetServing(serving bool)
}

// HealthMonitoringWorker periodically evaluates the probes and publishes the
// result, logging only transitions.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	target   servingSetter
	interval time.Duration
	probes   map[string]Probe
	serving  *bool
}

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

func NewHealthMonitoringWorker(log *slog.Logger, target servingSetter, interval time.Duration, probes map[string]Probe) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, target: target, interval: interval, probes: probes}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			w.target.SetServing(false)
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *HealthMonitoringWorker) check() {
	serving := true
	for name, probe := range w.probes {
		if !probe() {
			serving = false
			w.log.Debug("Health probe failed", "probe", name)
		}
	}
	if w.serving != nil && *w.serving == serving {
		return
	}
	w.serving = &serving
	w.target.SetServing(serving)
	if serving {
		w.log.Info("Service is serving")
	} else {
		w.log.Warn("Service is not serving")
	}
}
