package ws

import (
	"encoding/json"
	"fmt"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// socket is the part of *websocket.Conn the pumps need.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadLimit(int64)
	SetWriteDeadline(time.Time) error
	Close() error
}

// Connection is a live websocket seen from the session layer. Send never
// blocks: frames go through a bounded queue drained by the write pump.
type Connection struct {
	id           string
	log          *slog.Logger
	ws           socket
	send         chan []byte
	done         chan struct{}
	writeTimeout time.Duration
	pingInterval time.Duration

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

var _ contract.Connection = (*Connection)(nil)

func NewConnection(log *slog.Logger, ws socket, bufferSize int, writeTimeout, pingInterval time.Duration) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:           id,
		log:          log.With("connection_id", id),
		ws:           ws,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *Connection) ID() string { return c.id }

// Send enqueues evt. A client that cannot keep up with its queue is
// disconnected: it will get the backlog again when it reconnects.
func (c *Connection) Send(evt event.Outbound) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Event, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		go func() { _ = c.Close() }()
		return fmt.Errorf("%w: %d frames pending", errors.ErrSlowConsumer, len(c.send))
	}
}

// Close is idempotent. The write pump sends the close frame and releases
// the socket, which in turn ends the read loop.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
	})
	return nil
}

// writePump writes queued frames and keeps the connection alive with pings.
// It returns once the connection is closed or a write fails.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				return
			}
		case <-c.done:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}
