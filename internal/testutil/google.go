package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// FakeProfile is the userinfo returned by FakeGoogle
type FakeProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// FakeGoogle serves the subset of Google's OAuth, userinfo and Calendar
// endpoints the app uses, backed by in-memory state.
type FakeGoogle struct {
	Server *httptest.Server

	mu                sync.Mutex
	profile           FakeProfile
	issueRefreshToken bool
	pageSize          int
	counter           int
	validAccess       map[string]bool
	validRefresh      map[string]bool
	events            []*calendar.Event
	calendars         []*calendar.CalendarListEntry
	failures          []int
	listQueries       []url.Values
	insertedEvents    []*calendar.Event
	refreshCount      int
}

// NewFakeGoogle starts the fake server; it is closed when the test ends.
func NewFakeGoogle(t *testing.T) *FakeGoogle {
	t.Helper()

	f := &FakeGoogle{
		profile: FakeProfile{
			ID:      "google-sub-1",
			Email:   "user@example.com",
			Name:    "Test User",
			Picture: "https://example.com/pic.png",
		},
		issueRefreshToken: true,
		pageSize:          2500,
		validAccess:       make(map[string]bool),
		validRefresh:      make(map[string]bool),
		calendars: []*calendar.CalendarListEntry{
			{Id: "primary", Summary: "Primary Calendar", TimeZone: "UTC", Primary: true, AccessRole: "owner"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /oauth2/v2/userinfo", f.handleUserinfo)
	mux.HandleFunc("GET /calendar/v3/calendars/primary/events", f.handleListEvents)
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events", f.handleInsertEvent)
	mux.HandleFunc("GET /calendar/v3/users/me/calendarList", f.handleCalendarList)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake server
func (f *FakeGoogle) URL() string {
	return f.Server.URL
}

// OAuthConfig returns an OAuth config whose endpoints point at the fake
func (f *FakeGoogle) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:3001/auth/google/callback",
		Scopes:       []string{"openid", "profile", "email", calendar.CalendarScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.Server.URL + "/auth",
			TokenURL:  f.Server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// CalendarOptions point a Calendar client at the fake
func (f *FakeGoogle) CalendarOptions() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(f.Server.URL + "/calendar/v3/")}
}

// UserinfoOptions point an oauth2/v2 client at the fake
func (f *FakeGoogle) UserinfoOptions() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(f.Server.URL + "/")}
}

// SetProfile replaces the userinfo profile
func (f *FakeGoogle) SetProfile(p FakeProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = p
}

// SetIssueRefreshToken controls whether the token endpoint returns a refresh token
func (f *FakeGoogle) SetIssueRefreshToken(issue bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueRefreshToken = issue
}

// SetPageSize sets how many events each list page returns
func (f *FakeGoogle) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// SetEvents replaces the primary calendar's events
func (f *FakeGoogle) SetEvents(events ...*calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

// FailNext makes the next n calendar requests fail with status
func (f *FakeGoogle) FailNext(status, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.failures = append(f.failures, status)
	}
}

// GrantAccessToken registers a valid access token and returns it
func (f *FakeGoogle) GrantAccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newAccessTokenLocked()
}

// GrantRefreshToken registers a valid refresh token and returns it
func (f *FakeGoogle) GrantRefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	token := fmt.Sprintf("refresh-%d", f.counter)
	f.validRefresh[token] = true
	return token
}

// RevokeAccessToken makes an access token fail with 401
func (f *FakeGoogle) RevokeAccessToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.validAccess, token)
}

// RevokeRefreshToken makes a refresh token fail with invalid_grant
func (f *FakeGoogle) RevokeRefreshToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.validRefresh, token)
}

// ListQueries returns the query strings of every events.list request
func (f *FakeGoogle) ListQueries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.listQueries...)
}

// InsertedEvents returns events created through events.insert
func (f *FakeGoogle) InsertedEvents() []*calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*calendar.Event(nil), f.insertedEvents...)
}

// RefreshCount is how many refresh_token grants succeeded
func (f *FakeGoogle) RefreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCount
}

func (f *FakeGoogle) newAccessTokenLocked() string {
	f.counter++
	token := fmt.Sprintf("access-%d", f.counter)
	f.validAccess[token] = true
	return token
}

func (f *FakeGoogle) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	resp := map[string]interface{}{
		"token_type": "Bearer",
		"expires_in": 3600,
		"scope":      "openid email profile " + calendar.CalendarScope,
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if code := r.PostForm.Get("code"); code == "" || code == "bad-code" {
			writeOAuthError(w, "invalid_grant")
			return
		}
		resp["access_token"] = f.newAccessTokenLocked()
		if f.issueRefreshToken {
			f.counter++
			refresh := fmt.Sprintf("refresh-%d", f.counter)
			f.validRefresh[refresh] = true
			resp["refresh_token"] = refresh
		}
	case "refresh_token":
		if !f.validRefresh[r.PostForm.Get("refresh_token")] {
			writeOAuthError(w, "invalid_grant")
			return
		}
		f.refreshCount++
		resp["access_token"] = f.newAccessTokenLocked()
	default:
		writeOAuthError(w, "unsupported_grant_type")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeOAuthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": code,
	})
}

func (f *FakeGoogle) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return f.validAccess[token]
}

// failLocked reports an injected failure and writes it; caller holds mu
func (f *FakeGoogle) failLocked(w http.ResponseWriter) bool {
	if len(f.failures) == 0 {
		return false
	}
	status := f.failures[0]
	f.failures = f.failures[1:]
	writeAPIError(w, status, http.StatusText(status))
	return true
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}

func (f *FakeGoogle) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	writeJSON(w, http.StatusOK, f.profile)
}

func (f *FakeGoogle) handleListEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	f.listQueries = append(f.listQueries, r.URL.Query())
	if f.failLocked(w) {
		return
	}

	pageSize := f.pageSize
	if max, err := strconv.Atoi(r.URL.Query().Get("maxResults")); err == nil && max > 0 && max < pageSize {
		pageSize = max
	}

	offset := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		offset, _ = strconv.Atoi(token)
	}
	end := offset + pageSize
	if end > len(f.events) {
		end = len(f.events)
	}

	resp := &calendar.Events{Kind: "calendar#events"}
	if offset < len(f.events) {
		resp.Items = f.events[offset:end]
	}
	if end < len(f.events) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeGoogle) handleInsertEvent(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	if f.failLocked(w) {
		return
	}

	var event calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	f.counter++
	event.Id = fmt.Sprintf("created-%d", f.counter)
	event.HtmlLink = "https://calendar.google.com/event?eid=" + event.Id
	event.Status = "confirmed"
	event.Created = "2025-01-01T00:00:00.000Z"
	event.Updated = "2025-01-01T00:00:00.000Z"

	f.insertedEvents = append(f.insertedEvents, &event)
	f.events = append(f.events, &event)
	writeJSON(w, http.StatusOK, &event)
}

func (f *FakeGoogle) handleCalendarList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	if f.failLocked(w) {
		return
	}
	writeJSON(w, http.StatusOK, &calendar.CalendarList{Items: f.calendars})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
