package session

import (
	"context"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/errors"
	"sync"
	"time"
)

type State int

const (
	Unidentified State = iota
	Identified
	Closed
)

func (s State) String() string {
	switch s {
	case Unidentified:
		return "unidentified"
	case Identified:
		return "identified"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the protocol state of one connection.
// Events of a session are handled one at a time, in arrival order.
type Session struct {
	handler           *Handler
	conn              contract.Connection
	authenticatedUser string

	mu     sync.Mutex
	state  State
	userID string
	gone   bool
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// HandleFrame decodes one inbound frame and dispatches it.
// Failures are logged here; the returned error is informative only and the
// connection stays open whatever happens.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) error {
	var envelope event.Envelope
	if err := event.Decode(frame, &envelope); err != nil {
		s.report("", err)
		return err
	}
	return s.Dispatch(ctx, envelope)
}

func (s *Session) Dispatch(ctx context.Context, envelope event.Envelope) error {
	err := s.dispatch(ctx, envelope)
	s.report(envelope.Event, err)
	return err
}

func (s *Session) dispatch(ctx context.Context, envelope event.Envelope) error {
	switch envelope.Event {
	case event.UserConnected:
		userID, err := event.DecodeIdentity(envelope.Data)
		if err != nil {
			return err
		}
		return s.Announce(ctx, userID)
	case event.SendMessage:
		var payload event.SendMessagePayload
		if err := event.Decode(envelope.Data, &payload); err != nil {
			if errors.Is(err, errors.ErrInvalidIdentity) && s.State() == Identified {
				s.push(event.NewMessageError(event.SendMessage, payload.ReceiverID, err))
			}
			return err
		}
		return s.SendMessage(ctx, payload)
	case event.Typing:
		var payload event.TypingPayload
		if err := event.Decode(envelope.Data, &payload); err != nil {
			return err
		}
		return s.Typing(payload)
	case event.MessageRead:
		var payload event.MessageReadPayload
		if err := event.Decode(envelope.Data, &payload); err != nil {
			return err
		}
		return s.Read(ctx, payload)
	case event.LoadMessages:
		var payload event.LoadMessagesPayload
		if err := event.Decode(envelope.Data, &payload); err != nil {
			return err
		}
		return s.LoadMessages(ctx, payload)
	case event.UserDisconnected:
		userID, err := event.DecodeIdentity(envelope.Data)
		if err != nil {
			return err
		}
		return s.Disconnect(userID)
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Event)
	}
}

// Announce binds the connection to userID. A connection announcing another
// identity releases the previous one first; a user already bound elsewhere is
// taken over by this connection.
func (s *Session) Announce(ctx context.Context, userID string) error {
	if s.authenticatedUser != "" && s.authenticatedUser != userID {
		return fmt.Errorf("%w: token was issued for another user", errors.ErrInvalidToken)
	}

	// Held until the backlog is pushed: live sends to userID wait for it
	h := s.handler
	unlock := h.gates.lock(userID)
	defer unlock()

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return errors.ErrSessionClosed
	}
	previous := ""
	if s.state == Identified && s.userID != userID && h.registry.UnregisterIfStillBound(s.userID, s.conn) {
		previous = s.userID
	}
	h.registry.Register(userID, s.conn)
	s.state = Identified
	s.userID = userID
	s.mu.Unlock()

	if previous != "" {
		h.log.Info("Connection switched identity", "previous_user_id", previous, "user_id", userID)
		h.publish(event.PresenceChanged{UserID: previous, IsOnline: false, Online: h.registry.Snapshot(), At: time.Now().UTC()})
	}
	h.log.Info("User connected", "user_id", userID, "connection_id", s.conn.ID())
	h.broadcastPresence(userID, true)

	// Pushed even if the delivered write failed; they will be replayed again next time
	backlog, err := h.delivery.OnConnect(ctx, userID)
	for _, m := range backlog {
		s.push(event.NewReceiveMessage(m))
	}
	if err != nil {
		return fmt.Errorf("replay backlog: %w", err)
	}
	if len(backlog) > 0 {
		h.log.Debug("Backlog replayed", "user_id", userID, "count", len(backlog))
	}
	return nil
}

func (s *Session) SendMessage(ctx context.Context, payload event.SendMessagePayload) error {
	userID, err := s.identified()
	if err != nil {
		return err
	}
	if payload.SenderID != userID {
		return fmt.Errorf("%w: senderId %q on session of %q", errors.ErrIdentityMismatch, payload.SenderID, userID)
	}

	result, err := s.handler.deliver(ctx, payload, s.conn)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidIdentity) || errors.Is(err, errors.ErrInvalidContent) {
			s.push(event.NewMessageError(event.SendMessage, payload.ReceiverID, err))
		}
		return err
	}
	if result.Delivered {
		s.push(event.NewReceiveMessage(result.Message))
	}
	s.push(event.NewMessageSent(result.Message))
	return nil
}

// Typing is forwarded only when the receiver is online, never stored.
func (s *Session) Typing(payload event.TypingPayload) error {
	userID, err := s.identified()
	if err != nil {
		return err
	}
	if payload.SenderID != userID {
		return fmt.Errorf("%w: typing as %q on session of %q", errors.ErrIdentityMismatch, payload.SenderID, userID)
	}
	receiver, ok := s.handler.registry.Lookup(payload.ReceiverID)
	if !ok {
		return nil
	}
	return receiver.Send(event.NewTyping(payload.SenderID))
}

// Read marks the message seen and tells its sender, if online.
func (s *Session) Read(ctx context.Context, payload event.MessageReadPayload) error {
	userID, err := s.identified()
	if err != nil {
		return err
	}
	h := s.handler
	if _, err = h.delivery.OnRead(ctx, payload.MessageID, userID, payload.SenderID); err != nil {
		return err
	}
	sender, ok := h.registry.Lookup(payload.SenderID)
	if !ok {
		return nil
	}
	return sender.Send(event.NewMessageSeen(payload.MessageID))
}

func (s *Session) LoadMessages(ctx context.Context, payload event.LoadMessagesPayload) error {
	userID, err := s.identified()
	if err != nil {
		return err
	}
	if payload.SenderID != userID {
		return fmt.Errorf("%w: history of %q requested by %q", errors.ErrIdentityMismatch, payload.SenderID, userID)
	}
	history, err := s.handler.delivery.History(ctx, userID)
	if err != nil {
		return err
	}
	s.push(event.NewPreviousMessages(history))
	return nil
}

// Disconnect is the explicit logout: no grace period, offline right away.
func (s *Session) Disconnect(userID string) error {
	s.mu.Lock()
	if s.state != Identified {
		state := s.state
		s.mu.Unlock()
		return stateError(state)
	}
	if userID != s.userID {
		bound := s.userID
		s.mu.Unlock()
		return fmt.Errorf("%w: disconnect of %q on session of %q", errors.ErrIdentityMismatch, userID, bound)
	}
	s.state = Closed
	s.mu.Unlock()

	h := s.handler
	unlock := h.gates.lock(userID)
	h.registry.Unregister(userID)
	unlock()
	h.log.Info("User disconnected", "user_id", userID)
	h.broadcastPresence(userID, false)
	return nil
}

// Close is called by the transport once the connection is gone. The user
// stays online for the grace period so a quick reconnect goes unnoticed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return
	}
	s.gone = true
	s.state = Closed
	s.mu.Unlock()

	h := s.handler
	h.hub.Remove(s.conn)
	userID, bound := h.registry.BoundUser(s.conn)
	if !bound {
		return
	}
	h.log.Debug("Connection lost, grace period started", "user_id", userID, "grace_period", h.gracePeriod)
	h.scheduleEviction(userID, s.conn)
}

func (s *Session) identified() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Identified {
		return "", stateError(s.state)
	}
	return s.userID, nil
}

func stateError(state State) error {
	if state == Closed {
		return errors.ErrSessionClosed
	}
	return errors.ErrUnidentifiedConnection
}

func (s *Session) push(evt event.Outbound) {
	if err := s.conn.Send(evt); err != nil {
		s.handler.log.Debug("Push to own connection failed", "connection_id", s.conn.ID(), "event", evt.Event, "error", err)
	}
}

// report logs a failed event at a level matching its cause.
func (s *Session) report(name string, err error) {
	if err == nil {
		return
	}
	log := s.handler.log.With("event", name, "connection_id", s.conn.ID(), "user_id", s.UserID(), "error", err)
	switch {
	case errors.Is(err, errors.ErrSessionClosed):
		log.Debug("Event ignored on closed session")
	case name == event.Typing || name == event.MessageRead:
		log.Debug("Event failed silently")
	case errors.IsDomain(err), errors.Is(err, errors.ErrUnidentifiedConnection),
		errors.Is(err, errors.ErrMalformedEvent), errors.Is(err, errors.ErrUnknownEvent),
		errors.Is(err, errors.ErrInvalidToken):
		log.Warn("Event rejected")
	default:
		log.Error("Event failed")
	}
}
