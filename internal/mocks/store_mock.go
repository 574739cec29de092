package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
)

// MockAuthStore is a mock implementation of auth.Store
type MockAuthStore struct {
	mock.Mock
}

var _ auth.Store = (*MockAuthStore)(nil)

// Users

func (m *MockAuthStore) UpsertGoogleUser(ctx context.Context, googleSub, email, name, picture string) (*database.User, error) {
	args := m.Called(ctx, googleSub, email, name, picture)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.User), args.Error(1)
}

// Google Tokens

func (m *MockAuthStore) SaveGoogleToken(ctx context.Context, token *database.GoogleToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// Refresh Tokens

func (m *MockAuthStore) CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *MockAuthStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*database.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.RefreshToken), args.Error(1)
}

func (m *MockAuthStore) RotateRefreshToken(ctx context.Context, oldHash string, userID int64, newHash string, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, oldHash, userID, newHash, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *MockAuthStore) RevokeAllRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthStore) CleanupRefreshTokens(ctx context.Context, revokedBefore time.Time) (int64, error) {
	args := m.Called(ctx, revokedBefore)
	return args.Get(0).(int64), args.Error(1)
}

// MockIdentity is a mock implementation of auth.IdentityProvider
type MockIdentity struct {
	mock.Mock
}

var _ auth.IdentityProvider = (*MockIdentity)(nil)

func (m *MockIdentity) AuthCodeURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockIdentity) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockIdentity) UserInfo(ctx context.Context, token *oauth2.Token) (*auth.GoogleProfile, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.GoogleProfile), args.Error(1)
}
