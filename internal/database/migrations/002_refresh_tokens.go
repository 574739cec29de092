package migrations

import (
	"context"
	"database/sql"
)

func init() {
	Register(Migration{
		Version: 2,
		Name:    "refresh_tokens",
		Up:      refreshTokens,
		Down:    dropRefreshTokens,
	})
}

func refreshTokens(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash CHAR(64) NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at)`,
	})
}

func dropRefreshTokens(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{`DROP TABLE IF EXISTS refresh_tokens`})
}
