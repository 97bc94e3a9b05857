package storage

import (
	"sync"
	"time"
)

// clock hands out strictly increasing creation times at the backend's precision,
// so two messages of the same pair never tie on their ordering key.
type clock struct {
	mu         sync.Mutex
	last       time.Time
	resolution time.Duration
	now        func() time.Time
}

func newClock(resolution time.Duration) *clock {
	return &clock{resolution: resolution, now: time.Now}
}

func (c *clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.now().UTC().Truncate(c.resolution)
	if !next.After(c.last) {
		next = c.last.Add(c.resolution)
	}
	c.last = next
	return next
}
