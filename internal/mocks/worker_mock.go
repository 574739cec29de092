package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/omriShneor/calsync/internal/eventsync"
)

// MockSyncer is a mock implementation of eventsync.Syncer
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncAllUsers(ctx context.Context) (eventsync.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(eventsync.Summary), args.Error(1)
}

// MockTokenCleaner is a mock implementation of eventsync.TokenCleaner
type MockTokenCleaner struct {
	mock.Mock
}

func (m *MockTokenCleaner) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
