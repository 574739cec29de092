package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RefreshToken is a stored session refresh token. Only the SHA-256 hash of
// the JWT is persisted.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	IsRevoked bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// CreateRefreshToken records a newly issued refresh token
func (d *DB) CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	return insertRefreshToken(ctx, d.DB, userID, tokenHash, expiresAt)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, ex execer, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// FindActiveRefreshToken returns the token if it is neither revoked nor expired, nil otherwise
func (d *DB) FindActiveRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	return d.getRefreshToken(ctx, `token_hash = $1 AND is_revoked = FALSE AND expires_at > NOW()`, tokenHash)
}

// GetRefreshTokenByHash returns the token in any state, nil if unknown
func (d *DB) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	return d.getRefreshToken(ctx, `token_hash = $1`, tokenHash)
}

func (d *DB) getRefreshToken(ctx context.Context, where string, arg any) (*RefreshToken, error) {
	var (
		rt        RefreshToken
		revokedAt sql.NullTime
	)
	err := d.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, is_revoked, revoked_at, created_at
		FROM refresh_tokens WHERE `+where, arg,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.IsRevoked, &revokedAt, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if revokedAt.Valid {
		rt.RevokedAt = &revokedAt.Time
	}
	return &rt, nil
}

// RotateRefreshToken revokes the old token and stores its replacement in one
// transaction. It returns false without writing anything when the old token
// is not active for the user, which is how a replayed or concurrently used
// refresh token is detected.
func (d *DB) RotateRefreshToken(ctx context.Context, oldHash string, userID int64, newHash string, expiresAt time.Time) (bool, error) {
	rotated := false
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = NOW()
			WHERE token_hash = $1 AND user_id = $2 AND is_revoked = FALSE AND expires_at > NOW()
		`, oldHash, userID)
		if err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := insertRefreshToken(ctx, tx, userID, newHash, expiresAt); err != nil {
			return err
		}
		rotated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return rotated, nil
}

// RevokeRefreshToken marks a single token revoked. Unknown hashes are ignored.
func (d *DB) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := d.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = NOW()
		WHERE token_hash = $1 AND is_revoked = FALSE
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokens revokes every active token of the user and returns how many were revoked
func (d *DB) RevokeAllRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	res, err := d.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = NOW()
		WHERE user_id = $1 AND is_revoked = FALSE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// CleanupRefreshTokens deletes expired tokens and tokens revoked before
// revokedBefore. Recently revoked rows are kept so reuse can still be detected.
func (d *DB) CleanupRefreshTokens(ctx context.Context, revokedBefore time.Time) (int64, error) {
	res, err := d.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at <= NOW() OR (is_revoked AND revoked_at <= $1)
	`, revokedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
