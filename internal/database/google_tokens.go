package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GoogleToken is a user's stored Google credential. AccessToken and
// RefreshToken hold ciphertext; callers encrypt before saving.
type GoogleToken struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SaveGoogleToken inserts or replaces the user's Google token. An empty
// RefreshToken or Scope keeps the stored value, since Google omits the
// refresh token on repeat consent and on access-token refresh.
func (d *DB) SaveGoogleToken(ctx context.Context, token *GoogleToken) error {
	if token.UserID <= 0 || token.AccessToken == "" {
		return errors.New("google token requires user id and access token")
	}

	_, err := d.ExecContext(ctx, `
		INSERT INTO google_tokens (user_id, access_token, refresh_token, expiry, scope)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, google_tokens.refresh_token),
			expiry = EXCLUDED.expiry,
			scope = COALESCE(NULLIF(EXCLUDED.scope, ''), google_tokens.scope),
			updated_at = NOW()
	`, token.UserID, token.AccessToken, token.RefreshToken, nullTime(token.Expiry), token.Scope)
	if err != nil {
		return fmt.Errorf("failed to save google token: %w", err)
	}
	return nil
}

// GetGoogleToken returns nil if the user has no stored token
func (d *DB) GetGoogleToken(ctx context.Context, userID int64) (*GoogleToken, error) {
	var (
		t       GoogleToken
		refresh sql.NullString
		expiry  sql.NullTime
	)
	err := d.QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, expiry, scope, created_at, updated_at
		FROM google_tokens WHERE user_id = $1
	`, userID).Scan(&t.UserID, &t.AccessToken, &refresh, &expiry, &t.Scope, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get google token: %w", err)
	}

	t.RefreshToken = refresh.String
	if expiry.Valid {
		t.Expiry = expiry.Time
	}
	return &t, nil
}

// DeleteGoogleToken removes the user's stored Google token
func (d *DB) DeleteGoogleToken(ctx context.Context, userID int64) error {
	if _, err := d.ExecContext(ctx, `DELETE FROM google_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete google token: %w", err)
	}
	return nil
}

// ListUsersWithGoogleToken returns the IDs of users that can be synced
func (d *DB) ListUsersWithGoogleToken(ctx context.Context) ([]int64, error) {
	rows, err := d.QueryContext(ctx, `SELECT user_id FROM google_tokens ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list google token users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
