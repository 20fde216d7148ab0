// Package session implements LedgerIsland's authentication-session core.
//
// It provides a single-active-session model on top of opaque bearer
// secrets: a browser holds the raw secret, the store holds only the
// SHA-256 digest. Validation enforces an absolute TTL and a 15-minute
// sliding idle window; idle sessions are discovered lazily at validation
// time rather than swept by a background task.
//
// Deactivation is monotonic. A session flips active -> inactive once
// (idle, logout, kick or supersession) and never back. Every flip caused
// by a competing login or an explicit kick is announced to the session's
// sync-channel subscribers through a fire-and-forget publisher.
//
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
