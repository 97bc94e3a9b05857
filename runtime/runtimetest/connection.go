// Package runtimetest provides an in-memory connection recording what it is sent.
package runtimetest

import (
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/errors"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Connection struct {
	id     string
	mu     sync.Mutex
	events []event.Outbound
	closed bool
}

var _ contract.Connection = (*Connection)(nil)

func NewConnection() *Connection {
	return &Connection{id: uuid.NewString()}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Send(evt event.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of everything received so far, in order.
func (c *Connection) Events() []event.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Outbound(nil), c.events...)
}

func (c *Connection) Named(name string) []event.Outbound {
	return lo.Filter(c.Events(), func(evt event.Outbound, _ int) bool {
		return evt.Event == name
	})
}

// Names lists the received event names, in order.
func (c *Connection) Names() []string {
	return lo.Map(c.Events(), func(evt event.Outbound, _ int) string { return evt.Event })
}

// Last returns the most recent event with that name.
func (c *Connection) Last(name string) (event.Outbound, bool) {
	evt, _, ok := lo.FindLastIndexOf(c.Events(), func(evt event.Outbound) bool {
		return evt.Event == name
	})
	return evt, ok
}

func (c *Connection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
