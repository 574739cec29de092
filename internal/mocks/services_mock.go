package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/eventsync"
	"github.com/omriShneor/calsync/internal/gcal"
)

// MockAuthService is a mock of the auth operations the HTTP server uses
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) LoginURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockAuthService) CompleteLogin(ctx context.Context, code string) (*auth.LoginResult, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.LoginResult), args.Error(1)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.TokenPair), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuthService) VerifyAccessToken(token string) (*auth.Claims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

// MockCalendarService is a mock of the live Google Calendar operations
type MockCalendarService struct {
	mock.Mock
}

func (m *MockCalendarService) ListUpcomingEvents(ctx context.Context, userID int64, daysAhead int) ([]gcal.CalendarEvent, error) {
	args := m.Called(ctx, userID, daysAhead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gcal.CalendarEvent), args.Error(1)
}

func (m *MockCalendarService) CreateEvent(ctx context.Context, userID int64, input gcal.CreateEventInput) (*gcal.CalendarEvent, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gcal.CalendarEvent), args.Error(1)
}

func (m *MockCalendarService) ListCalendars(ctx context.Context, userID int64) ([]gcal.CalendarInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gcal.CalendarInfo), args.Error(1)
}

// MockSyncService is a mock of the sync operations
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) SyncUserEvents(ctx context.Context, userID int64) (*eventsync.Result, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventsync.Result), args.Error(1)
}

func (m *MockSyncService) GetEventsFromDatabase(ctx context.Context, userID int64, daysAhead int) ([]database.Event, error) {
	args := m.Called(ctx, userID, daysAhead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.Event), args.Error(1)
}

// MockHealthChecker is a mock database health check
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
