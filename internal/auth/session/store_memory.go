package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a dev/test fallback when the database is not configured.
// It implements the same compare-and-set semantics as the Postgres store:
// every bulk flip runs under one lock, so the ids returned are exactly the
// rows flipped by that call.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*Row   // id -> row
	byHash map[string]string // token_hash -> id
	audits []LoginAudit
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*Row),
		byHash: make(map[string]string),
	}
}

// Create inserts a new session row, enforcing token-hash uniqueness.
func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byHash[row.TokenHash]; dup {
		return ErrDuplicateTokenHash
	}

	r := row
	s.rows[r.ID] = &r
	s.byHash[r.TokenHash] = r.ID
	return nil
}

// GetActiveByTokenHash loads the active, non-expired row for a digest.
func (s *MemoryStore) GetActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	r := s.rows[id]
	if r == nil || !r.IsActive {
		return Row{}, ErrSessionNotFound
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return Row{}, ErrSessionNotFound
	}
	return *r, nil
}

// Deactivate flips a single session inactive (idempotent).
func (s *MemoryStore) Deactivate(ctx context.Context, sessionID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.rows[sessionID]; r != nil {
		r.IsActive = false
	}
	_ = reason // recorded by the Postgres store; the memory row keeps only the flag
	return nil
}

// DeactivateAllForUser flips every still-active session of userID except
// keepSessionID and returns the flipped ids, sorted for determinism.
func (s *MemoryStore) DeactivateAllForUser(ctx context.Context, userID, keepSessionID, reason string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = reason

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.rows {
		if r.UserID != userID || !r.IsActive || id == keepSessionID {
			continue
		}
		r.IsActive = false
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SessionIDsForUser lists every session id for the user except
// keepSessionID, active or not.
func (s *MemoryStore) SessionIDsForUser(ctx context.Context, userID, keepSessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.rows {
		if r.UserID != userID || id == keepSessionID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Touch advances last_seen_at, forward only.
func (s *MemoryStore) Touch(ctx context.Context, sessionID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rows[sessionID]
	if r == nil {
		return nil
	}
	if r.LastSeenAt == nil || r.LastSeenAt.Before(now) {
		t := now
		r.LastSeenAt = &t
	}
	return nil
}

// AppendAudit appends one login-audit row.
func (s *MemoryStore) AppendAudit(ctx context.Context, a LoginAudit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.audits = append(s.audits, a)
	return nil
}

// Snapshot returns a copy of a session row by id (tests, diagnostics).
func (s *MemoryStore) Snapshot(sessionID string) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rows[sessionID]
	if r == nil {
		return Row{}, false
	}
	return *r, true
}

// Audits returns a copy of the append-only audit trail (tests).
func (s *MemoryStore) Audits() []LoginAudit {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LoginAudit, len(s.audits))
	copy(out, s.audits)
	return out
}

var _ Store = (*MemoryStore)(nil)
