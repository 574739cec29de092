package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User represents a user in the system
type User struct {
	ID        int64     `json:"id"`
	GoogleSub string    `json:"google_sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const userColumns = `id, google_sub, email, name, picture, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.GoogleSub, &u.Email, &u.Name, &u.Picture, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertGoogleUser creates the user for a Google subject or refreshes the profile fields
func (d *DB) UpsertGoogleUser(ctx context.Context, googleSub, email, name, picture string) (*User, error) {
	row := d.QueryRowContext(ctx, `
		INSERT INTO users (google_sub, email, name, picture)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (google_sub) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			picture = EXCLUDED.picture,
			updated_at = NOW()
		RETURNING `+userColumns,
		googleSub, email, name, picture,
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// GetUserByID returns nil if the user does not exist
func (d *DB) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return d.getUser(ctx, `id = $1`, id)
}

// GetUserByGoogleSub returns nil if no user has the Google subject
func (d *DB) GetUserByGoogleSub(ctx context.Context, googleSub string) (*User, error) {
	return d.getUser(ctx, `google_sub = $1`, googleSub)
}

// GetUserByEmail returns the most recently updated user with the email
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.getUser(ctx, `email = $1 ORDER BY updated_at DESC LIMIT 1`, email)
}

func (d *DB) getUser(ctx context.Context, where string, arg any) (*User, error) {
	row := d.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
