// Package domain contains core concepts of the helpdesk chat.
// This file defines the Message entity and its content rules.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"fmt"
	"helpdesk-chat/errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Message is a point-to-point chat message.
// CreatedAt is assigned once by the store and never changes; it is the ordering key.
type Message struct {
	ID        string
	Sender    string
	Receiver  string
	Content   string
	Status    Status
	CreatedAt time.Time

	// Read-side annotations, only filled when a conversation is loaded.
	SenderName   string
	ReceiverName string
}

// Involves reports whether the user is one of the two parties of the message.
func (m Message) Involves(userID string) bool {
	return m.Sender == userID || m.Receiver == userID
}

// WithStatus returns a copy carrying the given status when the transition is forward.
func (m Message) WithStatus(next Status) Message {
	if m.Status.CanAdvanceTo(next) {
		m.Status = next
	}
	return m
}

// NormalizeContent trims the content and checks it is neither empty nor longer
// than maxLength runes. A maxLength of zero disables the length check.
func NormalizeContent(content string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty message", errors.ErrInvalidContent)
	}
	if maxLength > 0 && utf8.RuneCountInString(trimmed) > maxLength {
		return "", fmt.Errorf("%w: more than %d characters", errors.ErrInvalidContent, maxLength)
	}
	return trimmed, nil
}
