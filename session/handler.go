// Package session runs the per-connection protocol: identity announcement,
// message sending, typing, read receipts, history and disconnection.
package session

import (
	"context"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/runtime"
	"helpdesk-chat/services"
	"log/slog"
	"sync"
	"time"
)

// Handler holds what every session shares. One per process.
type Handler struct {
	log         *slog.Logger
	registry    contract.IRegistry
	hub         *runtime.Hub
	delivery    services.IDeliveryService
	events      chan<- event.DomainEvent
	gracePeriod time.Duration

	gates *deliveryGates

	mu        sync.Mutex
	evictions map[string]*time.Timer // map connection ID -> pending eviction
}

func NewHandler(log *slog.Logger, registry contract.IRegistry, hub *runtime.Hub,
	delivery services.IDeliveryService, events chan<- event.DomainEvent, gracePeriod time.Duration) *Handler {
	return &Handler{
		log:         log,
		registry:    registry,
		hub:         hub,
		delivery:    delivery,
		events:      events,
		gracePeriod: gracePeriod,
		gates:       newDeliveryGates(),
		evictions:   make(map[string]*time.Timer),
	}
}

type Option func(*Session)

// WithAuthenticatedUser pins the only identity the connection may announce.
func WithAuthenticatedUser(userID string) Option {
	return func(s *Session) { s.authenticatedUser = userID }
}

// Open starts a session for a freshly accepted connection.
func (h *Handler) Open(conn contract.Connection, opts ...Option) *Session {
	s := &Session{handler: h, conn: conn, state: Unidentified}
	for _, opt := range opts {
		opt(s)
	}
	h.hub.Add(conn)
	return s
}

// PendingEvictions counts the grace timers not fired yet.
func (h *Handler) PendingEvictions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.evictions)
}

// Shutdown stops every pending grace timer. Used when the process exits.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, timer := range h.evictions {
		timer.Stop()
		delete(h.evictions, id)
	}
}

// scheduleEviction marks the user offline after the grace period, unless it
// reconnected meanwhile. Supersession is detected by handle equality in the
// registry, the timer itself is never cancelled by a reconnect.
func (h *Handler) scheduleEviction(userID string, conn contract.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictions[conn.ID()] = time.AfterFunc(h.gracePeriod, func() {
		h.mu.Lock()
		delete(h.evictions, conn.ID())
		h.mu.Unlock()

		unlock := h.gates.lock(userID)
		removed := h.registry.UnregisterIfStillBound(userID, conn)
		unlock()
		if !removed {
			h.log.Debug("Grace period elapsed, user reconnected meanwhile", "user_id", userID)
			return
		}
		h.log.Info("User offline after grace period", "user_id", userID)
		h.broadcastPresence(userID, false)
	})
}

// deliver stores a message and pushes it live when the receiver is online.
// It holds the receiver's gate, so a live push never overtakes the backlog
// flush of a concurrent connect and a message is never in both.
func (h *Handler) deliver(ctx context.Context, payload event.SendMessagePayload, from contract.Connection) (services.SendResult, error) {
	unlock := h.gates.lock(payload.ReceiverID)
	defer unlock()

	result, err := h.delivery.OnSend(ctx, payload.SenderID, payload.ReceiverID, payload.Message)
	if err != nil || !result.Delivered {
		return result, err
	}
	receiver, ok := h.registry.Lookup(payload.ReceiverID)
	if !ok || receiver.ID() == from.ID() {
		return result, nil
	}
	if err = receiver.Send(event.NewReceiveMessage(result.Message)); err != nil {
		h.log.Warn("Live push to receiver failed", "message_id", result.Message.ID,
			"receiver", payload.ReceiverID, "error", err)
	}
	return result, nil
}

// broadcastPresence sends the current online list to every live connection.
func (h *Handler) broadcastPresence(userID string, online bool) {
	snapshot := h.registry.Snapshot()
	h.hub.Broadcast(event.NewOnlineUsers(snapshot))
	h.publish(event.PresenceChanged{UserID: userID, IsOnline: online, Online: snapshot, At: time.Now().UTC()})
}

// deliveryGates is a keyed mutex. A user's gate is held while they are
// bound or unbound and while a message to them is stored and pushed.
type deliveryGates struct {
	mu    sync.Mutex
	gates map[string]*deliveryGate
}

type deliveryGate struct {
	sync.Mutex
	refs int
}

func newDeliveryGates() *deliveryGates {
	return &deliveryGates{gates: make(map[string]*deliveryGate)}
}

func (g *deliveryGates) lock(userID string) (unlock func()) {
	g.mu.Lock()
	gate, ok := g.gates[userID]
	if !ok {
		gate = &deliveryGate{}
		g.gates[userID] = gate
	}
	gate.refs++
	g.mu.Unlock()

	gate.Lock()
	return func() {
		gate.Unlock()
		g.mu.Lock()
		defer g.mu.Unlock()
		if gate.refs--; gate.refs == 0 {
			delete(g.gates, userID)
		}
	}
}

func (h *Handler) publish(evt event.DomainEvent) {
	if h.events == nil {
		return
	}
	if !event.TryPublish(h.events, evt) {
		h.log.Warn("Domain event dropped, fan-out channel full", "event", evt.Name())
	}
}
