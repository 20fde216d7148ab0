package session

import "errors"

var (
	// ErrSessionNotFound is returned when a token digest or id does not
	// match any eligible session row.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateTokenHash is returned when inserting a row whose token
	// digest already exists. The collision must never adopt the other row.
	ErrDuplicateTokenHash = errors.New("duplicate token hash")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
