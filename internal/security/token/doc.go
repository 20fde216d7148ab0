// Package token provides the session-token primitives for LedgerIsland.
//
// It is the single source of truth for three operations:
//   - minting opaque session secrets (32 random bytes, base64url raw),
//   - deriving the SHA-256 hex digest stored and looked up server-side,
//   - computing and verifying the HMAC-SHA256 control tag that binds a
//     session id to the sync-channel subscription capability.
//
// The control-tag key is accepted either as strict base64 or as raw UTF-8
// bytes (decoded-first with byte-string fallback). Tag verification is
// constant-time; a malformed id or tag always verifies as false.
package token
