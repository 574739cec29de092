package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/mocks"
)

// startLogin hits /auth/google and returns the issued state and cookies
func startLogin(t *testing.T, ts *testServer) (string, []*http.Cookie) {
	t.Helper()

	var state string
	ts.auth.On("LoginURL", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { state = args.String(0) }).
		Return("https://accounts.example/o/oauth2/auth?state=captured").Once()

	w := ts.do("GET", "/auth/google", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://accounts.example/o/oauth2/auth?state=captured", w.Header().Get("Location"))
	require.NotEmpty(t, state)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return state, cookies
}

func callbackRequest(code, state string, cookies []*http.Cookie) *http.Request {
	query := url.Values{}
	if code != "" {
		query.Set("code", code)
	}
	if state != "" {
		query.Set("state", state)
	}
	req := httptest.NewRequest("GET", "/auth/google/callback?"+query.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestHandleGoogleLogin(t *testing.T) {
	ts := newTestServer(t)

	_, cookies := startLogin(t, ts)

	var stateCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == stateSessionName {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)
	assert.True(t, stateCookie.HttpOnly)
	assert.Equal(t, "/auth", stateCookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, stateCookie.SameSite)
	assert.False(t, stateCookie.Secure)
}

func TestHandleGoogleCallback(t *testing.T) {
	t.Run("success redirects to the frontend with the token pair", func(t *testing.T) {
		ts := newTestServer(t)
		state, cookies := startLogin(t, ts)

		ts.auth.On("CompleteLogin", mock.Anything, "auth-code").Return(&auth.LoginResult{
			User:   &database.User{ID: 7, Email: "user@example.com"},
			Tokens: &auth.TokenPair{AccessToken: "access.jwt", RefreshToken: "refresh.jwt"},
		}, nil).Once()

		w := ts.serve(callbackRequest("auth-code", state, cookies))
		require.Equal(t, http.StatusFound, w.Code)

		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:3000", location.Host)
		assert.Equal(t, "/auth/callback", location.Path)
		assert.Equal(t, "access.jwt", location.Query().Get("access_token"))
		assert.Equal(t, "refresh.jwt", location.Query().Get("refresh_token"))
		ts.auth.AssertExpectations(t)
	})

	t.Run("missing code", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.serve(callbackRequest("", "whatever", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No code received", decodeBody(t, w)["message"])
	})

	t.Run("missing state cookie", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.serve(callbackRequest("auth-code", "forged", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid OAuth state", decodeBody(t, w)["message"])
		ts.auth.AssertNotCalled(t, "CompleteLogin", mock.Anything, mock.Anything)
	})

	t.Run("mismatched state", func(t *testing.T) {
		ts := newTestServer(t)
		_, cookies := startLogin(t, ts)

		w := ts.serve(callbackRequest("auth-code", "not-the-state", cookies))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		ts.auth.AssertNotCalled(t, "CompleteLogin", mock.Anything, mock.Anything)
	})

	t.Run("cookie signed with another secret", func(t *testing.T) {
		other := newTestServer(t, func(c *Config) { c.SessionSecret = "someone-else" })
		state, cookies := startLogin(t, other)

		ts := newTestServer(t)
		w := ts.serve(callbackRequest("auth-code", state, cookies))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"incomplete profile", auth.ErrIncompleteProfile, http.StatusBadRequest, "Incomplete google data"},
		{"exchange failure", errors.New("oauth2: cannot fetch token"), http.StatusInternalServerError, "OAuth error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			state, cookies := startLogin(t, ts)
			ts.auth.On("CompleteLogin", mock.Anything, "auth-code").Return(nil, tt.err).Once()

			w := ts.serve(callbackRequest("auth-code", state, cookies))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, decodeBody(t, w)["message"])
		})
	}
}

func TestHandleRefresh(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		setup      func(*mocks.MockAuthService)
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "invalid json",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid request body",
		},
		{
			name:       "missing token",
			body:       map[string]string{},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Refresh token required",
		},
		{
			name: "revoked token",
			body: map[string]string{"refreshToken": "old"},
			setup: func(m *mocks.MockAuthService) {
				m.On("Refresh", mock.Anything, "old").Return(nil, auth.ErrInvalidRefreshToken)
			},
			wantStatus: http.StatusForbidden,
			wantMsg:    "Invalid refresh token",
		},
		{
			name: "database failure",
			body: map[string]string{"refreshToken": "old"},
			setup: func(m *mocks.MockAuthService) {
				m.On("Refresh", mock.Anything, "old").Return(nil, errors.New("connection reset"))
			},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to refresh token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts.auth)
			}

			w := ts.do("POST", "/auth/refresh", tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, decodeBody(t, w)["message"])
		})
	}

	t.Run("rotates", func(t *testing.T) {
		ts := newTestServer(t)
		ts.auth.On("Refresh", mock.Anything, "old").
			Return(&auth.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil)

		w := ts.do("POST", "/auth/refresh", map[string]string{"refreshToken": "old"}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		response := decodeBody(t, w)
		assert.Equal(t, "new-access", response["accessToken"])
		assert.Equal(t, "new-refresh", response["refreshToken"])
	})
}

func TestHandleLogout(t *testing.T) {
	t.Run("revokes the presented token", func(t *testing.T) {
		ts := newTestServer(t)
		ts.auth.On("Logout", mock.Anything, "refresh.jwt").Return(nil).Once()

		w := ts.do("POST", "/auth/logout", map[string]string{"refreshToken": "refresh.jwt"}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Logged out successfully", decodeBody(t, w)["message"])
		ts.auth.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		ts := newTestServer(t)
		ts.auth.On("Logout", mock.Anything, "refresh.jwt").Return(errors.New("db down"))

		w := ts.do("POST", "/auth/logout", map[string]string{"refreshToken": "refresh.jwt"}, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Logout failed", decodeBody(t, w)["message"])
	})
}

func TestHandleLogoutAll(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("LogoutAll", mock.Anything, int64(7)).Return(nil).Once()

	assert.Equal(t, http.StatusUnauthorized, ts.do("POST", "/auth/logout-all", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do("POST", "/auth/logout-all", nil,
		map[string]string{"Authorization": "Bearer forged"}).Code)

	w := ts.do("POST", "/auth/logout-all", nil, authHeader())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logged out from all devices successfully", decodeBody(t, w)["message"])
	ts.auth.AssertExpectations(t)
}

func TestHandleVerify(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/auth/verify", nil, authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, true, response["authenticated"])
	assert.Equal(t, "7", response["userId"])
	assert.Equal(t, "user@example.com", response["email"])
}
