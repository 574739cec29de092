package gcal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/testutil"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// memoryStore keeps tokens and events in memory with the same
// keep-on-empty semantics as the database.
type memoryStore struct {
	mu     sync.Mutex
	tokens map[int64]*database.GoogleToken
	events []*database.Event
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: make(map[int64]*database.GoogleToken)}
}

func (m *memoryStore) GetGoogleToken(_ context.Context, userID int64) (*database.GoogleToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[userID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStore) SaveGoogleToken(_ context.Context, token *database.GoogleToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	cp := *token
	if prev, ok := m.tokens[token.UserID]; ok {
		if cp.RefreshToken == "" {
			cp.RefreshToken = prev.RefreshToken
		}
		if cp.Scope == "" {
			cp.Scope = prev.Scope
		}
	}
	m.tokens[token.UserID] = &cp
	return nil
}

func (m *memoryStore) SaveEvent(_ context.Context, event *database.Event) (*database.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !event.Valid() {
		return nil, errors.New("invalid event")
	}
	cp := *event
	cp.ID = int64(len(m.events) + 1)
	m.events = append(m.events, &cp)
	return &cp, nil
}

type testEnv struct {
	fake    *testutil.FakeGoogle
	store   *memoryStore
	enc     *auth.Encryptor
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := testutil.NewFakeGoogle(t)
	enc, err := auth.NewEncryptor(testKey)
	require.NoError(t, err)
	store := newMemoryStore()

	service := NewService(fake.OAuthConfig(), store, enc, clockwork.NewFakeClockAt(testNow), zap.NewNop(), Options{
		Location:             time.UTC,
		RetryInitialInterval: time.Millisecond,
		ClientOptions:        fake.CalendarOptions(),
	})

	return &testEnv{fake: fake, store: store, enc: enc, service: service}
}

// seedToken stores an encrypted Google token for user 1
func (e *testEnv) seedToken(t *testing.T, access, refresh string, expiry time.Time) {
	t.Helper()

	accessEnc, err := e.enc.Encrypt(access)
	require.NoError(t, err)
	var refreshEnc string
	if refresh != "" {
		refreshEnc, err = e.enc.Encrypt(refresh)
		require.NoError(t, err)
	}
	require.NoError(t, e.store.SaveGoogleToken(context.Background(), &database.GoogleToken{
		UserID:       1,
		AccessToken:  accessEnc,
		RefreshToken: refreshEnc,
		Expiry:       expiry,
	}))
}

func (e *testEnv) seedValidToken(t *testing.T) {
	t.Helper()
	e.seedToken(t, e.fake.GrantAccessToken(), e.fake.GrantRefreshToken(), time.Now().Add(time.Hour))
}

func TestNoGoogleToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ListUpcomingEvents(context.Background(), 1, 7)
	require.ErrorIs(t, err, ErrNoGoogleToken)
	assert.True(t, IsReauthError(err))
}

func TestUndecryptableTokenRequiresReauth(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SaveGoogleToken(context.Background(), &database.GoogleToken{
		UserID:      1,
		AccessToken: "not-ciphertext",
	}))

	_, err := env.service.ListCalendars(context.Background(), 1)
	require.ErrorIs(t, err, ErrReauthRequired)
	assert.Empty(t, env.fake.ListQueries())
}

func TestExpiredAccessTokenIsRefreshedAndPersisted(t *testing.T) {
	env := newTestEnv(t)
	refresh := env.fake.GrantRefreshToken()
	env.seedToken(t, "access-expired", refresh, time.Now().Add(-time.Hour))
	before, _ := env.store.GetGoogleToken(context.Background(), 1)

	calendars, err := env.service.ListCalendars(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, calendars, 1)
	assert.Equal(t, 1, env.fake.RefreshCount())

	after, err := env.store.GetGoogleToken(context.Background(), 1)
	require.NoError(t, err)
	access, err := env.enc.Decrypt(after.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, "access-expired", access)
	assert.True(t, after.Expiry.After(time.Now()))
	assert.Equal(t, before.RefreshToken, after.RefreshToken, "refresh token must be kept when google does not rotate it")
}

func TestRevokedRefreshTokenRequiresReauth(t *testing.T) {
	env := newTestEnv(t)
	env.seedToken(t, "access-expired", "refresh-revoked", time.Now().Add(-time.Hour))

	_, err := env.service.ListCalendars(context.Background(), 1)
	require.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, 0, env.fake.RefreshCount())
}

func TestExpiredTokenWithoutRefreshTokenRequiresReauth(t *testing.T) {
	env := newTestEnv(t)
	env.seedToken(t, "access-expired", "", time.Now().Add(-time.Hour))

	_, err := env.service.ListUpcomingEvents(context.Background(), 1, 7)
	require.ErrorIs(t, err, ErrReauthRequired)
}

func TestUnauthorizedResponseRequiresReauth(t *testing.T) {
	env := newTestEnv(t)
	access := env.fake.GrantAccessToken()
	env.seedToken(t, access, "", time.Now().Add(time.Hour))
	env.fake.RevokeAccessToken(access)

	_, err := env.service.ListUpcomingEvents(context.Background(), 1, 7)
	require.ErrorIs(t, err, ErrReauthRequired)
}

func TestRetriesServerErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedValidToken(t)
	env.fake.SetEvents(testutil.NewEventBuilder("e1").Build())
	env.fake.FailNext(503, 2)

	events, err := env.service.ListUpcomingEvents(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.GreaterOrEqual(t, len(env.fake.ListQueries()), 3)
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedValidToken(t)
	env.fake.FailNext(400, 1)

	_, err := env.service.ListUpcomingEvents(context.Background(), 1, 7)
	require.Error(t, err)
	assert.False(t, IsReauthError(err))
	assert.Len(t, env.fake.ListQueries(), 1)
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(errors.New("plain")))
	assert.False(t, retryable(nil))
}
