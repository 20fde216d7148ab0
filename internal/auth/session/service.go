package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"ledgerisland/internal/security/token"
)

// ForcedLogoutPublisher fans a forced-logout event out to the subscribers
// of one session id. Publishing is fire-and-forget: it runs after the
// store mutation has committed and its failure never affects the caller.
type ForcedLogoutPublisher interface {
	PublishForcedLogout(sessionID, reason string)
}

// NopPublisher discards forced-logout events. Used when the sync channel
// is not wired (tests, tooling).
type NopPublisher struct{}

// PublishForcedLogout discards the event.
func (NopPublisher) PublishForcedLogout(string, string) {}

// Service implements the high-level session operations for LedgerIsland.
//
// It creates sessions (optionally superseding the user's prior ones),
// validates bearer secrets under the idle and TTL policies, supports
// per-session and per-user revocation, and appends the login audit trail.
type Service struct {
	cfg   Config
	store Store
	pub   ForcedLogoutPublisher
	log   *slog.Logger
}

// NewService constructs a Service with the provided configuration, store
// and publisher. A nil publisher falls back to NopPublisher.
func NewService(cfg Config, store Store, pub ForcedLogoutPublisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, store: store, pub: pub, log: log}
}

// CreateParams describes a session creation request.
type CreateParams struct {
	UserID    string
	UserAgent string
	IP        net.IP

	// InvalidateOthers supersedes every other active session of UserID
	// before the new row is written.
	InvalidateOthers bool

	// TTL sets the absolute deadline (now+TTL). Nil means unbounded;
	// a zero TTL produces a session that is already past its deadline.
	TTL *time.Duration
}

// Created is the result of creating a session. Secret is returned exactly
// once; only its digest is persisted.
type Created struct {
	SessionID string
	Secret    string
}

// Create mints a secret, supersedes other active sessions when requested,
// persists the new row and announces every superseded id on the sync
// channel. The "collect ids, commit flip, then publish" order is load-
// bearing: a publish can never roll back or mask the mutation.
func (s *Service) Create(ctx context.Context, now time.Time, p CreateParams) (Created, error) {
	secret, err := token.NewSessionSecret()
	if err != nil {
		return Created{}, err
	}

	var superseded []string
	if p.InvalidateOthers {
		superseded, err = s.store.DeactivateAllForUser(ctx, p.UserID, "", ReasonSuperseded)
		if err != nil {
			return Created{}, err
		}
		deactivatedTotal.WithLabelValues(ReasonSuperseded).Add(float64(len(superseded)))
		for _, sid := range superseded {
			s.pub.PublishForcedLogout(sid, ReasonSuperseded)
		}
	}

	row := Row{
		ID:         ulid.Make().String(),
		UserID:     p.UserID,
		TokenHash:  token.HashSecretHex(secret),
		CreatedAt:  now,
		LastSeenAt: &now,
		IsActive:   true,
		UserAgent:  p.UserAgent,
		IP:         p.IP,
	}
	if p.TTL != nil {
		exp := now.Add(*p.TTL)
		row.ExpiresAt = &exp
	}

	if err := s.store.Create(ctx, row); err != nil {
		return Created{}, err
	}

	s.log.Info("session.create",
		"session_id", row.ID,
		"user_id", p.UserID,
		"superseded", len(superseded),
	)

	return Created{SessionID: row.ID, Secret: secret}, nil
}

// Validate reports whether a bearer secret currently authenticates.
//
// A hit past the idle window deactivates the row as a side effect and
// reports false: idle expiry is discovered lazily here, never swept.
// A hit inside the window slides last_seen_at forward. The ip and ua are
// provenance for logs only; they carry no authorization weight.
func (s *Service) Validate(ctx context.Context, now time.Time, rawSecret, ip, ua string) (bool, error) {
	if rawSecret == "" {
		validateTotal.WithLabelValues(resultMiss).Inc()
		return false, nil
	}

	row, err := s.store.GetActiveByTokenHash(ctx, token.HashSecretHex(rawSecret), now)
	if errors.Is(err, ErrSessionNotFound) {
		validateTotal.WithLabelValues(resultMiss).Inc()
		return false, nil
	}
	if err != nil {
		validateTotal.WithLabelValues(resultError).Inc()
		return false, err
	}

	if row.LastSeenAt != nil && now.Sub(*row.LastSeenAt) > s.cfg.IdleTimeout {
		if err := s.store.Deactivate(ctx, row.ID, ReasonIdle); err != nil {
			validateTotal.WithLabelValues(resultError).Inc()
			return false, err
		}
		validateTotal.WithLabelValues(resultIdle).Inc()
		deactivatedTotal.WithLabelValues(ReasonIdle).Inc()
		s.log.Info("session.validate.idle", "session_id", row.ID, "user_id", row.UserID, "ip", ip, "user_agent", ua)
		return false, nil
	}

	if err := s.store.Touch(ctx, row.ID, now); err != nil {
		validateTotal.WithLabelValues(resultError).Inc()
		return false, err
	}

	validateTotal.WithLabelValues(resultOK).Inc()
	return true, nil
}

// Invalidate flips one session inactive (logout). Idempotent: an already
// inactive or unknown id is a no-op, never an error.
func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.store.Deactivate(ctx, sessionID, ReasonLogout); err != nil {
		return err
	}
	deactivatedTotal.WithLabelValues(ReasonLogout).Inc()
	return nil
}

// KickOthers deactivates every active session of userID except
// keepSessionID, then announces a forced logout for every other session
// id the user has — including ones already inactive, so any lingering
// subscriber connection is told.
func (s *Service) KickOthers(ctx context.Context, userID, keepSessionID string) error {
	flipped, err := s.store.DeactivateAllForUser(ctx, userID, keepSessionID, ReasonKicked)
	if err != nil {
		return err
	}
	deactivatedTotal.WithLabelValues(ReasonKicked).Add(float64(len(flipped)))

	notify, err := s.store.SessionIDsForUser(ctx, userID, keepSessionID)
	if err != nil {
		// The flip has committed; fall back to announcing what we know.
		s.log.Error("session.kick.list.fail", "err", err, "user_id", userID)
		notify = flipped
	}

	for _, sid := range notify {
		s.pub.PublishForcedLogout(sid, ReasonKicked)
	}

	s.log.Info("session.kick",
		"user_id", userID,
		"keep_session_id", keepSessionID,
		"deactivated", len(flipped),
		"notified", len(notify),
	)
	return nil
}

// Audit appends one login-audit row. Malformed or missing optional fields
// are persisted as-is; only a storage failure is an error, and the caller
// decides whether that failure may surface (login must still succeed).
func (s *Service) Audit(ctx context.Context, a LoginAudit) error {
	if a.LoggedAt.IsZero() {
		a.LoggedAt = time.Now().UTC()
	}
	if err := s.store.AppendAudit(ctx, a); err != nil {
		auditFailuresTotal.Inc()
		s.log.Error("session.audit.fail", "err", err, "user_id", a.UserID, "provider", a.Provider)
		return err
	}
	return nil
}

// IdleTimeout exposes the configured idle window (read-only).
func (s *Service) IdleTimeout() time.Duration { return s.cfg.IdleTimeout }
