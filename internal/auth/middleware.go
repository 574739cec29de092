package auth

import (
	"encoding/json"
	"net/http"
)

// TokenVerifier validates access tokens
type TokenVerifier interface {
	VerifyAccessToken(token string) (*Claims, error)
}

// Middleware provides HTTP middleware for authentication
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{
		verifier: verifier,
	}
}

// RequireAuth is middleware that requires a valid access token.
// The user is extracted from the token and added to the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "Access token required")
			return
		}

		user, err := m.userFromToken(token)
		if err != nil {
			writeAuthError(w, http.StatusForbidden, "Invalid or expired access token")
			return
		}

		ctx := SetUserInContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) userFromToken(token string) (*User, error) {
	claims, err := m.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserIDInt()
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Email: claims.Email}, nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"message":       message,
		"authenticated": false,
	})
}
