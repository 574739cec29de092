package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/auth"
)

const (
	// stateSessionName is the cookie carrying the OAuth state between login and callback
	stateSessionName = "oauth_state"
	stateSessionKey  = "state"
	stateMaxAge      = 10 * 60
)

func newSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/auth",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleGoogleLogin starts the OAuth flow
// GET /auth/google
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateSecureToken()
	if err != nil {
		s.logger.Error("failed to generate oauth state", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "OAuth initialization error")
		return
	}

	// A stale or tampered cookie yields a fresh session, which is fine here.
	session, _ := s.sessionStore.Get(r, stateSessionName)
	session.Values[stateSessionKey] = state
	if err := session.Save(r, w); err != nil {
		s.logger.Error("failed to save oauth state", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "OAuth initialization error")
		return
	}

	http.Redirect(w, r, s.auth.LoginURL(state), http.StatusFound)
}

// handleGoogleCallback completes the OAuth flow and hands the session pair to the frontend
// GET /auth/google/callback?code=...&state=...
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "No code received")
		return
	}

	if !s.consumeState(w, r) {
		respondError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}

	result, err := s.auth.CompleteLogin(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCode):
			respondError(w, http.StatusBadRequest, "No code received")
		case errors.Is(err, auth.ErrIncompleteProfile):
			respondError(w, http.StatusBadRequest, "Incomplete google data")
		default:
			s.logger.Error("oauth callback failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "OAuth error")
		}
		return
	}

	redirect := s.frontendURL + "/auth/callback?" + url.Values{
		"access_token":  {result.Tokens.AccessToken},
		"refresh_token": {result.Tokens.RefreshToken},
	}.Encode()
	http.Redirect(w, r, redirect, http.StatusFound)
}

// consumeState checks the state query parameter against the cookie and
// clears the cookie so a state is only usable once.
func (s *Server) consumeState(w http.ResponseWriter, r *http.Request) bool {
	session, err := s.sessionStore.Get(r, stateSessionName)
	if err != nil {
		return false
	}
	expected, _ := session.Values[stateSessionKey].(string)
	got := r.URL.Query().Get("state")

	delete(session.Values, stateSessionKey)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		s.logger.Warn("failed to clear oauth state", zap.Error(err))
	}

	return expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// handleRefresh rotates a refresh token
// POST /auth/refresh
// Body: { "refreshToken": "..." }
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenRequired):
			respondError(w, http.StatusUnauthorized, "Refresh token required")
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			respondError(w, http.StatusForbidden, "Invalid refresh token")
		default:
			s.logger.Error("token refresh failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to refresh token")
		}
		return
	}

	respondJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the presented refresh token
// POST /auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.logger.Error("logout failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// handleLogoutAll revokes every session of the current user
// POST /auth/logout-all
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := s.auth.LogoutAll(r.Context(), user.ID); err != nil {
		s.logger.Error("logout-all failed", zap.Int64("user_id", user.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out from all devices successfully"})
}

// handleVerify reports the identity behind the access token
// GET /auth/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"userId":        strconv.FormatInt(user.ID, 10),
		"email":         user.Email,
	})
}
