// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/promptstudio/api/internal/core"
)

type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByHash(ctx context.Context, tokenHash string) (*Session, error)
	Rotate(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, userID, id string) error
	RevokeByHash(ctx context.Context, userID, tokenHash string) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeAll(ctx context.Context, userID string) error
	ListActive(ctx context.Context, userID string, now time.Time) ([]Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

const sessionColumns = `
	id, user_id, token_hash, family_id, user_agent, ip_address,
	created_at, expires_at, rotated_at, revoked_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (
			id, user_id, token_hash, family_id, user_agent, ip_address, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &s.CreatedAt, query,
		s.ID,
		s.UserID,
		s.TokenHash,
		s.FamilyID,
		s.UserAgent,
		s.IPAddress,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (r *repository) GetByHash(ctx context.Context, tokenHash string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`

	var s Session
	err := r.db.GetContext(ctx, &s, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &s, nil
}

// Rotate succeeds for exactly one caller per session; later callers get
// core.ErrConflict.
func (r *repository) Rotate(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions
		SET rotated_at = $2
		WHERE id = $1 AND rotated_at IS NULL AND revoked_at IS NULL`

	return r.execOne(ctx, "rotate session", core.ErrConflict, query, id, at)
}

func (r *repository) Revoke(ctx context.Context, userID, id string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`

	return r.execOne(ctx, "revoke session", core.ErrNotFound, query, id, userID)
}

func (r *repository) RevokeByHash(ctx context.Context, userID, tokenHash string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND user_id = $2 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, tokenHash, userID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *repository) RevokeFamily(ctx context.Context, familyID string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE family_id = $1 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, familyID); err != nil {
		return fmt.Errorf("revoke session family: %w", err)
	}
	return nil
}

func (r *repository) RevokeAll(ctx context.Context, userID string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (r *repository) ListActive(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
			AND rotated_at IS NULL
			AND revoked_at IS NULL
			AND expires_at > $2
		ORDER BY created_at DESC`

	var sessions []Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID, now); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, nil
}

func (r *repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return rows, nil
}

func (r *repository) execOne(
	ctx context.Context,
	op string,
	none error,
	query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, none)
	}

	return nil
}
