package session

import (
	"context"
	"net"
	"time"
)

// Deactivation reason codes recorded on the row (write-once).
const (
	// ReasonIdle marks sessions closed by lazy idle-expiry at validate time.
	ReasonIdle = "idle"
	// ReasonLogout marks sessions closed by an explicit logout.
	ReasonLogout = "logout"
	// ReasonKicked marks sessions closed by a kick-others request.
	ReasonKicked = "kicked"
	// ReasonSuperseded marks sessions closed by a newer login for the same user.
	ReasonSuperseded = "superseded"
)

// Row mirrors the ledger.sessions row used by the session subsystem.
//
// IsActive is the sole authority for "can this session still authenticate".
// UserAgent and IP are write-once provenance for the audit trail; they are
// never consulted for authorization decisions.
type Row struct {
	ID         string
	UserID     string
	TokenHash  string
	CreatedAt  time.Time
	LastSeenAt *time.Time
	ExpiresAt  *time.Time
	IsActive   bool
	UserAgent  string
	IP         net.IP
}

// LoginAudit is one append-only authentication-attempt record.
// Rows are never updated or deleted after insertion.
type LoginAudit struct {
	UserID     string
	Provider   string
	LoggedAt   time.Time
	IP         net.IP
	UserAgent  string
	Success    bool
	Error      *string
	ProviderID *string
	Email      *string
	Name       *string
}

// Store abstracts persistence for session state and the login audit trail.
//
// Implementations must make DeactivateAllForUser a single compare-and-set
// style update: flip rows that are still active and return exactly the ids
// flipped by that call, so concurrent logins for the same user can neither
// double-count nor miss a session.
type Store interface {
	// Create inserts a new session row. TokenHash is unique across all
	// rows; a collision is surfaced as an error, never silently adopted.
	Create(ctx context.Context, row Row) error

	// GetActiveByTokenHash loads the active, non-expired row for a token
	// digest. Returns ErrSessionNotFound when no such row exists.
	GetActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Row, error)

	// Deactivate flips a single session inactive (idempotent). The reason
	// is recorded only on the flip that wins.
	Deactivate(ctx context.Context, sessionID, reason string) error

	// DeactivateAllForUser flips every still-active session of userID,
	// optionally keeping one id untouched (empty keep means none), and
	// returns the ids actually flipped by this call.
	DeactivateAllForUser(ctx context.Context, userID, keepSessionID, reason string) ([]string, error)

	// SessionIDsForUser lists every session id for userID except
	// keepSessionID, active or not.
	SessionIDsForUser(ctx context.Context, userID, keepSessionID string) ([]string, error)

	// Touch advances last_seen_at for a session. The timestamp only ever
	// moves forward; a stale touch is a no-op.
	Touch(ctx context.Context, sessionID string, now time.Time) error

	// AppendAudit appends a LoginAudit row.
	AppendAudit(ctx context.Context, a LoginAudit) error
}
