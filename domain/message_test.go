package domain

import (
	"helpdesk-chat/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusSeen, true},
		{StatusDelivered, StatusSeen, true},
		{StatusDelivered, StatusSent, false},
		{StatusSeen, StatusDelivered, false},
		{StatusSeen, StatusSent, false},
		{StatusSeen, StatusSeen, false},
		{StatusSent, Status("archived"), false},
		{Status(""), StatusSent, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			require.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestStatus_Below(t *testing.T) {
	req := require.New(t)
	req.Equal([]Status{StatusSent}, StatusDelivered.Below())
	req.Equal([]Status{StatusSent, StatusDelivered}, StatusSeen.Below())
	req.Empty(StatusSent.Below())
}

func TestMessage_WithStatus_NeverGoesBackward(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: "1", Status: StatusSeen}

	req.Equal(StatusSeen, msg.WithStatus(StatusDelivered).Status)
	req.Equal(StatusSeen, msg.WithStatus(StatusSent).Status)

	msg.Status = StatusSent
	req.Equal(StatusDelivered, msg.WithStatus(StatusDelivered).Status)
	// The receiver is a copy
	req.Equal(StatusSent, msg.Status)
}

func TestNormalizeContent(t *testing.T) {
	req := require.New(t)

	content, err := NormalizeContent("  hello agent  ", 10)
	req.NoError(err)
	req.Equal("hello agent", content)

	_, err = NormalizeContent("   \n\t", 10)
	req.ErrorIs(err, errors.ErrInvalidContent)

	_, err = NormalizeContent(strings.Repeat("é", 11), 10)
	req.ErrorIs(err, errors.ErrInvalidContent)

	content, err = NormalizeContent(strings.Repeat("é", 10), 10)
	req.NoError(err)
	req.Equal(strings.Repeat("é", 10), content)

	_, err = NormalizeContent(strings.Repeat("a", 5000), 0)
	req.NoError(err)
}

func TestIdentity(t *testing.T) {
	req := require.New(t)
	req.True(IsValidIdentity("665f1c2ab1e4a2d3c4b5a6f7"))
	req.True(IsValidIdentity("agent_42-b"))
	req.False(IsValidIdentity(""))
	req.False(IsValidIdentity("alice bob"))
	req.False(IsValidIdentity(strings.Repeat("a", 65)))
	req.ErrorIs(ValidateIdentity("../etc"), errors.ErrInvalidIdentity)
	req.NoError(ValidateIdentity("Alice"))
}
