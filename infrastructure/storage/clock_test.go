package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClock_StrictlyIncreasing(t *testing.T) {
	req := require.New(t)
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 123456789, time.UTC)
	c := newClock(time.Millisecond)
	c.now = func() time.Time { return frozen }

	first := c.Next()
	second := c.Next()

	req.Equal(frozen.Truncate(time.Millisecond), first)
	req.Equal(first.Add(time.Millisecond), second)
}
