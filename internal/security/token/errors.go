package token

import "errors"

// Public, stable errors for callers.
var (
	ErrControlSecretMissing = errors.New("control secret missing")
	ErrBadSessionID         = errors.New("malformed session id")
)
