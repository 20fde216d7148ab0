package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (ledger.sessions,
// ledger.login_audit). Schema management is handled externally.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	var ip net.IP
	if row.IP != nil {
		ip = row.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger.sessions (
			id, user_id, token_hash,
			created_at, last_seen_at, expires_at,
			is_active, user_agent, ip, deactivated_reason
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, NULL
		)
	`, row.ID, row.UserID, row.TokenHash,
		row.CreatedAt, row.LastSeenAt, row.ExpiresAt,
		row.IsActive, nullIfEmpty(row.UserAgent), ip)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateTokenHash
	}
	return err
}

// GetActiveByTokenHash loads the active, non-expired row for a digest.
func (s *PostgresStore) GetActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT
			id, user_id, token_hash,
			created_at, last_seen_at, expires_at,
			is_active, COALESCE(user_agent, ''), ip
		FROM ledger.sessions
		WHERE token_hash = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > $2)
	`, tokenHash, now).Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&row.CreatedAt,
		&row.LastSeenAt,
		&row.ExpiresAt,
		&row.IsActive,
		&row.UserAgent,
		&row.IP,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}

	return row, nil
}

// Deactivate flips a single session inactive (idempotent). The reason
// sticks on the first flip only.
func (s *PostgresStore) Deactivate(ctx context.Context, sessionID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ledger.sessions
		SET is_active = FALSE,
		    deactivated_reason = COALESCE(deactivated_reason, $2)
		WHERE id = $1
	`, sessionID, nullIfEmpty(reason))
	return err
}

// DeactivateAllForUser flips the user's still-active sessions in a single
// compare-and-set statement and returns exactly the ids it flipped.
// An empty keepSessionID keeps nothing.
func (s *PostgresStore) DeactivateAllForUser(ctx context.Context, userID, keepSessionID, reason string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE ledger.sessions
		SET is_active = FALSE,
		    deactivated_reason = COALESCE(deactivated_reason, $3)
		WHERE user_id = $1
		  AND is_active
		  AND id <> $2
		RETURNING id
	`, userID, keepSessionID, nullIfEmpty(reason))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SessionIDsForUser lists every session id for the user except
// keepSessionID, regardless of active state.
func (s *PostgresStore) SessionIDsForUser(ctx context.Context, userID, keepSessionID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM ledger.sessions
		WHERE user_id = $1
		  AND id <> $2
	`, userID, keepSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Touch advances last_seen_at, forward only.
func (s *PostgresStore) Touch(ctx context.Context, sessionID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ledger.sessions
		SET last_seen_at = $2
		WHERE id = $1
		  AND (last_seen_at IS NULL OR last_seen_at < $2)
	`, sessionID, now)
	return err
}

// AppendAudit appends one login-audit row.
func (s *PostgresStore) AppendAudit(ctx context.Context, a LoginAudit) error {
	var ip net.IP
	if a.IP != nil {
		ip = a.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger.login_audit (
			user_id, provider, logged_at, ip, user_agent,
			success, error, provider_id, email, name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.UserID, a.Provider, a.LoggedAt, ip, nullIfEmpty(a.UserAgent),
		a.Success, a.Error, a.ProviderID, a.Email, a.Name)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
