package service

import "errors"

var (
	// Client-input failures, mapped to 4xx by transports.
	ErrNotFound     = errors.New("account or item not found")
	ErrAlreadyOwned = errors.New("item already owned")
	ErrInsufficient = errors.New("insufficient coins")

	// Webhook verification failures.
	ErrUnauthenticated  = errors.New("missing signature header")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrNoSecret         = errors.New("webhook secret is not configured")
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// Soft miss: quest events for unregistered accounts no-op instead of failing.
	ErrAccountNotFound = errors.New("account progress record not found")
)

// ClientError reports whether err should surface as a client (4xx) failure
// rather than a server failure.
func ClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyOwned) ||
		errors.Is(err, ErrInsufficient)
}
