package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/oklog/ulid/v2"
)

// SecretBytes is the entropy of a session secret (256 bits).
const SecretBytes = 32

// NewSessionSecret mints an opaque random session secret.
// URL-safe, no padding, so it survives cookie transport untouched.
// The secret must never be logged or persisted; callers store HashSecretHex.
func NewSessionSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecretHex returns the SHA-256 hex digest of a session secret.
// This is the only form of the secret the store ever sees (64 hex chars).
func HashSecretHex(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DecodeControlKey turns the configured control secret into HMAC key bytes.
// Strict base64 is tried first; anything that does not decode is used as
// raw UTF-8 bytes. An empty secret is a configuration error, not a fallback.
func DecodeControlKey(secret string) ([]byte, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrControlSecretMissing
	}
	if b, err := base64.StdEncoding.DecodeString(secret); err == nil {
		return b, nil
	}
	return []byte(secret), nil
}

// MakeControlTag computes the keyed integrity tag binding sessionID to the
// sync-channel subscription capability. The HMAC input is the session id's
// canonical 16-byte ULID form, so textual case differences cannot produce
// distinct tags.
func MakeControlTag(controlSecret, sessionID string) (string, error) {
	key, err := DecodeControlKey(controlSecret)
	if err != nil {
		return "", err
	}

	id, err := ulid.ParseStrict(sessionID)
	if err != nil {
		return "", ErrBadSessionID
	}

	m := hmac.New(sha256.New, key)
	_, _ = m.Write(id[:])
	return base64.StdEncoding.EncodeToString(m.Sum(nil)), nil
}

// VerifyControlTag recomputes the tag for sessionID and compares it to the
// provided value in constant time. Any malformed input verifies as false;
// it never reveals why.
func VerifyControlTag(controlSecret, sessionID, provided string) bool {
	expected, err := MakeControlTag(controlSecret, sessionID)
	if err != nil {
		return false
	}

	expectedRaw, err := base64.StdEncoding.DecodeString(expected)
	if err != nil {
		return false
	}
	providedRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(provided))
	if err != nil {
		return false
	}

	return hmac.Equal(expectedRaw, providedRaw)
}
