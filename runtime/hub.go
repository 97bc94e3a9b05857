package runtime

import (
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"log/slog"
	"sync"
)

// Hub tracks every live connection, identified or not, for broadcasts.
type Hub struct {
	mu    sync.RWMutex
	log   *slog.Logger
	conns map[string]contract.Connection
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, conns: make(map[string]contract.Connection)}
}

func (h *Hub) Add(conn contract.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

func (h *Hub) Remove(conn contract.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast enqueues evt on every connection. A failing connection is logged
// and skipped; it never prevents delivery to the others.
func (h *Hub) Broadcast(evt event.Outbound) int {
	h.mu.RLock()
	targets := make([]contract.Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		if err := conn.Send(evt); err != nil {
			h.log.Debug("Broadcast skipped a connection", "connection_id", conn.ID(), "event", evt.Event, "error", err)
			continue
		}
		sent++
	}
	return sent
}
