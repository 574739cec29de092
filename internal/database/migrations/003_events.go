package migrations

import (
	"context"
	"database/sql"
)

func init() {
	Register(Migration{
		Version: 3,
		Name:    "events",
		Up:      events,
		Down:    dropEvents,
	})
}

func events(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			google_event_id TEXT NOT NULL,
			name TEXT NOT NULL,
			start_datetime TIMESTAMPTZ NOT NULL,
			end_datetime TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, google_event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_start ON events(user_id, start_datetime)`,
	})
}

func dropEvents(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{`DROP TABLE IF EXISTS events`})
}
