package domain

import (
	"fmt"
	"helpdesk-chat/errors"
	"regexp"
)

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsValidIdentity checks the syntax of a user identifier.
// Identities are opaque and compared exactly, no case folding or trimming.
func IsValidIdentity(id string) bool {
	return identityPattern.MatchString(id)
}

func ValidateIdentity(id string) error {
	if !IsValidIdentity(id) {
		return fmt.Errorf("%w: %q", errors.ErrInvalidIdentity, id)
	}
	return nil
}
