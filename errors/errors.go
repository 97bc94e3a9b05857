package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic            = fmt.Errorf("worker panic")
	ErrInvalidIdentity        = fmt.Errorf("invalid identity")
	ErrInvalidContent         = fmt.Errorf("invalid message content")
	ErrStoreUnavailable       = fmt.Errorf("message store unavailable")
	ErrUnidentifiedConnection = fmt.Errorf("connection has not announced an identity")
	ErrMessageNotFound        = fmt.Errorf("message not found")
	ErrIdentityMismatch       = fmt.Errorf("identity does not match the session")
	ErrSessionClosed          = fmt.Errorf("session closed")
	ErrConnectionClosed       = fmt.Errorf("connection closed")
	ErrSlowConsumer           = fmt.Errorf("outbound queue full")
	ErrRateLimited            = fmt.Errorf("inbound rate limit exceeded")
	ErrUnknownEvent           = fmt.Errorf("unknown event")
	ErrMalformedEvent         = fmt.Errorf("malformed event")
	ErrInvalidToken           = fmt.Errorf("invalid token")
	ErrUserAlreadyExists      = fmt.Errorf("user already exists")
)

// Is and As re-export the standard helpers so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// IsDomain reports errors caused by the request rather than by infrastructure.
// They are never retried and never count against the store circuit breaker.
func IsDomain(err error) bool {
	for _, target := range []error{ErrInvalidIdentity, ErrInvalidContent, ErrMessageNotFound, ErrIdentityMismatch} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
