package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a Google Calendar event cached locally for fast listing
type Event struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	GoogleEventID string    `json:"google_event_id"`
	Name          string    `json:"name"`
	StartDateTime time.Time `json:"start_datetime"`
	EndDateTime   time.Time `json:"end_datetime"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Valid reports whether the event has everything a row requires
func (e *Event) Valid() bool {
	return e.UserID > 0 && e.GoogleEventID != "" && strings.TrimSpace(e.Name) != "" && !e.StartDateTime.IsZero()
}

const eventColumns = `id, user_id, google_event_id, name, start_datetime, end_datetime, created_at, updated_at`

const upsertEventSQL = `
	INSERT INTO events (user_id, google_event_id, name, start_datetime, end_datetime)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, google_event_id) DO UPDATE SET
		name = EXCLUDED.name,
		start_datetime = EXCLUDED.start_datetime,
		end_datetime = EXCLUDED.end_datetime,
		updated_at = NOW()`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	if err := row.Scan(&e.ID, &e.UserID, &e.GoogleEventID, &e.Name, &e.StartDateTime, &e.EndDateTime, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// endOrStart uses the start time for events without an end
func endOrStart(e *Event) time.Time {
	if e.EndDateTime.IsZero() {
		return e.StartDateTime
	}
	return e.EndDateTime
}

// SaveEvent inserts or updates a single event keyed by (user_id, google_event_id)
func (d *DB) SaveEvent(ctx context.Context, event *Event) (*Event, error) {
	if !event.Valid() {
		return nil, errors.New("event requires user id, google event id, name and start time")
	}

	row := d.QueryRowContext(ctx, upsertEventSQL+` RETURNING `+eventColumns,
		event.UserID, event.GoogleEventID, strings.TrimSpace(event.Name), event.StartDateTime, endOrStart(event))
	saved, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save event: %w", err)
	}
	return saved, nil
}

// BulkUpsertEvents writes all valid events in a single transaction and
// returns how many were written. Invalid entries are skipped.
func (d *DB) BulkUpsertEvents(ctx context.Context, events []Event) (int, error) {
	written := 0
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertEventSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare event upsert: %w", err)
		}
		defer stmt.Close()

		for i := range events {
			e := &events[i]
			if !e.Valid() {
				continue
			}
			if _, err := stmt.ExecContext(ctx, e.UserID, e.GoogleEventID, strings.TrimSpace(e.Name), e.StartDateTime, endOrStart(e)); err != nil {
				return fmt.Errorf("failed to upsert event %s: %w", e.GoogleEventID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ListUpcomingEvents returns the user's events starting within [from, to], ordered by start
func (d *DB) ListUpcomingEvents(ctx context.Context, userID int64, from, to time.Time) ([]Event, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = $1 AND start_datetime >= $2 AND start_datetime <= $3
		ORDER BY start_datetime ASC, id ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetEventByGoogleID returns nil if the user has no such event
func (d *DB) GetEventByGoogleID(ctx context.Context, userID int64, googleEventID string) (*Event, error) {
	row := d.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE user_id = $1 AND google_event_id = $2`,
		userID, googleEventID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// DeleteEventsForUser removes every cached event of the user
func (d *DB) DeleteEventsForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := d.ExecContext(ctx, `DELETE FROM events WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStaleEvents removes the user's events starting within [from, to]
// whose Google ID is not in keepIDs.
func (d *DB) DeleteStaleEvents(ctx context.Context, userID int64, from, to time.Time, keepIDs []string) (int64, error) {
	if keepIDs == nil {
		keepIDs = []string{}
	}
	res, err := d.ExecContext(ctx, `
		DELETE FROM events
		WHERE user_id = $1 AND start_datetime >= $2 AND start_datetime <= $3
			AND google_event_id <> ALL($4::text[])
	`, userID, from, to, keepIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale events: %w", err)
	}
	return res.RowsAffected()
}
