package eventsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/gcal"
	"github.com/omriShneor/calsync/internal/testutil"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	items  map[int64][]*calendar.Event
	errs   map[int64]error
	ranges [][2]time.Time
}

func (f *fakeSource) ListEventsInRange(_ context.Context, userID int64, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	f.ranges = append(f.ranges, [2]time.Time{timeMin, timeMax})
	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	return f.items[userID], nil
}

func (f *fakeSource) Location() *time.Location { return time.UTC }

type staleCall struct {
	userID   int64
	from, to time.Time
	keep     []string
}

type fakeStore struct {
	upserted   []database.Event
	staleCalls []staleCall
	removed    int64
	listFrom   time.Time
	listTo     time.Time
	users      []int64
	upsertErr  error
}

func (f *fakeStore) BulkUpsertEvents(_ context.Context, events []database.Event) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, events...)
	return len(events), nil
}

func (f *fakeStore) DeleteStaleEvents(_ context.Context, userID int64, from, to time.Time, keepIDs []string) (int64, error) {
	f.staleCalls = append(f.staleCalls, staleCall{userID: userID, from: from, to: to, keep: keepIDs})
	return f.removed, nil
}

func (f *fakeStore) ListUpcomingEvents(_ context.Context, _ int64, from, to time.Time) ([]database.Event, error) {
	f.listFrom, f.listTo = from, to
	return []database.Event{}, nil
}

func (f *fakeStore) ListUsersWithGoogleToken(context.Context) ([]int64, error) {
	return f.users, nil
}

func newTestService(source *fakeSource, store *fakeStore) *Service {
	return NewService(source, store, clockwork.NewFakeClockAt(testNow), zap.NewNop())
}

func TestSyncUserEvents(t *testing.T) {
	noID := testutil.NewEventBuilder("").Build()
	source := &fakeSource{items: map[int64][]*calendar.Event{
		1: {
			testutil.NewEventBuilder("e1").Build(),
			testutil.NewEventBuilder("e2").WithSummary("Offsite").AllDay("2025-06-10", "2025-06-12").Build(),
			testutil.NewEventBuilder("e3").WithSummary("   ").Build(),
			noID,
			testutil.NewEventBuilder("e5").WithoutStart().Build(),
			testutil.NewEventBuilder("e6").WithSummary("  Padded  ").Build(),
		},
	}}
	store := &fakeStore{removed: 2}
	svc := newTestService(source, store)

	result, err := svc.SyncUserEvents(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Synced)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, int64(2), result.Removed)
	assert.Equal(t, "Successfully synced 3 events from Google Calendar (6 months back to 6 months forward)", result.Message)

	require.Len(t, source.ranges, 1)
	assert.Equal(t, testNow.AddDate(0, -6, 0), source.ranges[0][0])
	assert.Equal(t, testNow.AddDate(0, 6, 0), source.ranges[0][1])

	require.Len(t, store.upserted, 3)
	allDay := store.upserted[1]
	assert.Equal(t, "Offsite", allDay.Name)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), allDay.StartDateTime)
	assert.Equal(t, time.Date(2025, 6, 11, 23, 59, 59, 0, time.UTC), allDay.EndDateTime)
	assert.Equal(t, "Padded", store.upserted[2].Name)
	for _, e := range store.upserted {
		assert.Equal(t, int64(1), e.UserID)
	}

	require.Len(t, store.staleCalls, 1)
	assert.Equal(t, []string{"e1", "e2", "e6"}, store.staleCalls[0].keep)
	assert.Equal(t, testNow.AddDate(0, -6, 0), store.staleCalls[0].from)
}

func TestSyncUserEventsEmptyWindow(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStore{removed: 4}
	svc := newTestService(source, store)

	result, err := svc.SyncUserEvents(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "No events found to sync", result.Message)
	assert.Zero(t, result.Synced)
	assert.Equal(t, int64(4), result.Removed)
	assert.Empty(t, store.upserted)
	require.Len(t, store.staleCalls, 1)
	assert.Empty(t, store.staleCalls[0].keep)
}

func TestSyncUserEventsFetchErrorLeavesStoreUntouched(t *testing.T) {
	source := &fakeSource{errs: map[int64]error{1: fmt.Errorf("%w: invalid_grant", gcal.ErrReauthRequired)}}
	store := &fakeStore{}
	svc := newTestService(source, store)

	_, err := svc.SyncUserEvents(context.Background(), 1)
	require.ErrorIs(t, err, gcal.ErrReauthRequired)
	assert.Empty(t, store.upserted)
	assert.Empty(t, store.staleCalls)
}

func TestSyncUserEventsUpsertErrorSkipsPrune(t *testing.T) {
	source := &fakeSource{items: map[int64][]*calendar.Event{1: {testutil.NewEventBuilder("e1").Build()}}}
	store := &fakeStore{upsertErr: errors.New("db down")}
	svc := newTestService(source, store)

	_, err := svc.SyncUserEvents(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, store.staleCalls)
}

func TestGetEventsFromDatabase(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		wantUntil time.Time
	}{
		{"default for zero", 0, testNow.AddDate(0, 0, 30)},
		{"default for negative", -3, testNow.AddDate(0, 0, 30)},
		{"week", 7, testNow.AddDate(0, 0, 7)},
		{"capped", 1000, testNow.AddDate(0, 0, 365)},
		{"one day means today", 1, time.Date(2025, 6, 1, 23, 59, 59, 999999999, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc := newTestService(&fakeSource{}, store)

			events, err := svc.GetEventsFromDatabase(context.Background(), 1, tt.days)
			require.NoError(t, err)
			assert.NotNil(t, events)
			assert.Equal(t, testNow, store.listFrom)
			assert.True(t, tt.wantUntil.Equal(store.listTo), "got %v", store.listTo)
		})
	}
}

func TestSyncAllUsersContinuesPastFailures(t *testing.T) {
	source := &fakeSource{
		items: map[int64][]*calendar.Event{
			1: {testutil.NewEventBuilder("a").Build()},
			3: {testutil.NewEventBuilder("b").Build(), testutil.NewEventBuilder("c").Build()},
		},
		errs: map[int64]error{
			2: gcal.ErrNoGoogleToken,
			4: errors.New("boom"),
		},
	}
	store := &fakeStore{users: []int64{1, 2, 3, 4}}
	svc := newTestService(source, store)

	summary, err := svc.SyncAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Users: 4, Failed: 2, NeedReauth: 1, Synced: 3}, summary)
	assert.Len(t, source.ranges, 4)
}

func TestSummaryJSONKeys(t *testing.T) {
	data, err := json.Marshal(Summary{Users: 3, Failed: 1, NeedReauth: 1, Synced: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":3,"failed":1,"needReauth":1,"synced":1}`, string(data))
}
