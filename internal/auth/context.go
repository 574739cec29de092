package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserContextKey is the key used to store user info in request context
	UserContextKey contextKey = "user"
)

// User represents the authenticated user in request context
type User struct {
	ID    int64  `json:"userId"`
	Email string `json:"email"`
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(UserContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// SetUserInContext returns a new context with the user set
func SetUserInContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}
