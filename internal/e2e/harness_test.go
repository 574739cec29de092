package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/eventsync"
	"github.com/omriShneor/calsync/internal/gcal"
	"github.com/omriShneor/calsync/internal/server"
	"github.com/omriShneor/calsync/internal/testutil"
)

const (
	testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testFrontendURL   = "http://127.0.0.1:3000"
)

// TestServer runs the full stack against Postgres and a fake Google
type TestServer struct {
	DB         *database.DB
	Google     *testutil.FakeGoogle
	Auth       *auth.Service
	Calendar   *gcal.Service
	Sync       *eventsync.Service
	HTTPServer *httptest.Server
	Encryptor  *auth.Encryptor
	t          *testing.T
}

// NewTestServer wires real services over the shared database. Tables are
// truncated when the test ends.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	if testing.Short() || testDB == nil {
		t.Skip("Skipping e2e test: postgres not available")
	}

	t.Cleanup(func() {
		_, err := testDB.ExecContext(context.Background(), "TRUNCATE users, google_tokens, refresh_tokens, events RESTART IDENTITY CASCADE")
		if err != nil {
			t.Logf("Failed to truncate tables: %v", err)
		}
	})

	google := testutil.NewFakeGoogle(t)
	clock := clockwork.NewRealClock()
	logger := zap.NewNop()

	encryptor, err := auth.NewEncryptor(testEncryptionKey)
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer("e2e-access-secret", "e2e-refresh-secret", clock)
	require.NoError(t, err)

	oauthConfig := google.OAuthConfig()
	identity := auth.NewGoogleIdentity(oauthConfig, google.UserinfoOptions()...)

	authService := auth.NewService(testDB, identity, encryptor, issuer, clock, logger)
	calendarService := gcal.NewService(oauthConfig, testDB, encryptor, clock, logger, gcal.Options{
		Location:             time.UTC,
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
		ClientOptions:        google.CalendarOptions(),
	})
	syncService := eventsync.NewService(calendarService, testDB, clock, logger)

	srv := server.New(server.Config{
		AppEnv:        "development",
		FrontendURL:   testFrontendURL,
		SessionSecret: "e2e-session-secret",
		AuthRateLimit: 1000,
		AuthRateBurst: 1000,
		Auth:          authService,
		Calendar:      calendarService,
		Sync:          syncService,
		Health:        testDB,
		Clock:         clock,
		Logger:        logger,
	})

	ts := &TestServer{
		DB:         testDB,
		Google:     google,
		Auth:       authService,
		Calendar:   calendarService,
		Sync:       syncService,
		HTTPServer: httptest.NewServer(srv.Handler()),
		Encryptor:  encryptor,
		t:          t,
	}
	t.Cleanup(ts.HTTPServer.Close)
	return ts
}

// BaseURL returns the test server base URL
func (ts *TestServer) BaseURL() string {
	return ts.HTTPServer.URL
}

// Browser returns a client that keeps cookies and does not follow redirects
func (ts *TestServer) Browser() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(ts.t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Callback runs the Google OAuth flow in a fresh browser and returns the
// callback's status and redirect location.
func (ts *TestServer) Callback() (int, *url.URL) {
	ts.t.Helper()
	browser := ts.Browser()

	resp, err := browser.Get(ts.BaseURL() + "/auth/google")
	require.NoError(ts.t, err)
	resp.Body.Close()
	require.Equal(ts.t, http.StatusFound, resp.StatusCode)

	consent, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(ts.t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(ts.t, state)

	callback := ts.BaseURL() + "/auth/google/callback?" + url.Values{
		"code":  {"consent-code"},
		"state": {state},
	}.Encode()
	resp, err = browser.Get(callback)
	require.NoError(ts.t, err)
	resp.Body.Close()

	redirect, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(ts.t, err)
	return resp.StatusCode, redirect
}

// Login signs in as the fake's current profile and returns the session pair
func (ts *TestServer) Login() auth.TokenPair {
	ts.t.Helper()

	status, redirect := ts.Callback()
	require.Equal(ts.t, http.StatusFound, status)

	pair := auth.TokenPair{
		AccessToken:  redirect.Query().Get("access_token"),
		RefreshToken: redirect.Query().Get("refresh_token"),
	}
	require.NotEmpty(ts.t, pair.AccessToken)
	require.NotEmpty(ts.t, pair.RefreshToken)
	return pair
}

// StoredGoogleToken returns the user's Google tokens decrypted
func (ts *TestServer) StoredGoogleToken(userID int64) (access, refresh string) {
	ts.t.Helper()

	stored, err := ts.DB.GetGoogleToken(context.Background(), userID)
	require.NoError(ts.t, err)
	require.NotNil(ts.t, stored)

	access, err = ts.Encryptor.Decrypt(stored.AccessToken)
	require.NoError(ts.t, err)
	if stored.RefreshToken != "" {
		refresh, err = ts.Encryptor.Decrypt(stored.RefreshToken)
		require.NoError(ts.t, err)
	}
	return access, refresh
}

// Do sends a JSON request with an optional bearer token and decodes the JSON response
func (ts *TestServer) Do(method, path, accessToken string, body interface{}) (int, map[string]interface{}) {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.BaseURL()+path, reader)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}
