package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/metrics"
)

// RevokedRetention is how long revoked refresh tokens are kept for reuse detection
const RevokedRetention = 24 * time.Hour

var (
	ErrMissingCode          = errors.New("no code received")
	ErrIncompleteProfile    = errors.New("incomplete google data")
	ErrRefreshTokenRequired = errors.New("refresh token required")
)

// Store is the persistence the auth service needs. *database.DB implements it.
type Store interface {
	UpsertGoogleUser(ctx context.Context, googleSub, email, name, picture string) (*database.User, error)
	SaveGoogleToken(ctx context.Context, token *database.GoogleToken) error
	CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*database.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, userID int64, newHash string, expiresAt time.Time) (bool, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID int64) (int64, error)
	CleanupRefreshTokens(ctx context.Context, revokedBefore time.Time) (int64, error)
}

// IdentityProvider is the Google side of the login flow
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, token *oauth2.Token) (*GoogleProfile, error)
}

// Cipher encrypts credentials before they are stored
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// LoginResult is returned after a successful OAuth callback
type LoginResult struct {
	User   *database.User
	Tokens *TokenPair
}

// Service handles login, session refresh and logout
type Service struct {
	store    Store
	identity IdentityProvider
	cipher   Cipher
	issuer   *TokenIssuer
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewService creates a new auth service
func NewService(store Store, identity IdentityProvider, cipher Cipher, issuer *TokenIssuer, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		identity: identity,
		cipher:   cipher,
		issuer:   issuer,
		clock:    clock,
		logger:   logger,
	}
}

// LoginURL returns the Google consent URL for the given state
func (s *Service) LoginURL(state string) string {
	return s.identity.AuthCodeURL(state)
}

// VerifyAccessToken validates a session access token
func (s *Service) VerifyAccessToken(token string) (*Claims, error) {
	return s.issuer.VerifyAccessToken(token)
}

// CompleteLogin exchanges the OAuth code, upserts the user, stores the
// encrypted Google tokens and issues a new session pair.
func (s *Service) CompleteLogin(ctx context.Context, code string) (*LoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}

	token, err := s.identity.Exchange(ctx, code)
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("login", "exchange_error").Inc()
		return nil, err
	}

	profile, err := s.identity.UserInfo(ctx, token)
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("login", "userinfo_error").Inc()
		return nil, err
	}
	if profile.Sub == "" || profile.Email == "" || profile.Name == "" {
		metrics.AuthEventsTotal.WithLabelValues("login", "incomplete_profile").Inc()
		return nil, ErrIncompleteProfile
	}

	user, err := s.store.UpsertGoogleUser(ctx, profile.Sub, profile.Email, profile.Name, profile.Picture)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if err := s.storeGoogleToken(ctx, user.ID, token); err != nil {
		return nil, err
	}

	pair, err := s.issueSession(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	metrics.AuthEventsTotal.WithLabelValues("login", "success").Inc()
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))

	return &LoginResult{User: user, Tokens: pair}, nil
}

// storeGoogleToken encrypts and persists the Google tokens. A blank refresh
// token is not encrypted and leaves the stored one in place.
func (s *Service) storeGoogleToken(ctx context.Context, userID int64, token *oauth2.Token) error {
	accessEncrypted, err := s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var refreshEncrypted string
	if strings.TrimSpace(token.RefreshToken) != "" {
		refreshEncrypted, err = s.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	} else {
		s.logger.Warn("google did not return a refresh token; keeping stored one", zap.Int64("user_id", userID))
	}

	err = s.store.SaveGoogleToken(ctx, &database.GoogleToken{
		UserID:       userID,
		AccessToken:  accessEncrypted,
		RefreshToken: refreshEncrypted,
		Expiry:       token.Expiry,
		Scope:        Scope(token),
	})
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, userID int64, email string) (*TokenPair, error) {
	pair, err := s.issuer.IssuePair(userID, email)
	if err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().Add(s.issuer.RefreshTTL())
	if err := s.store.CreateRefreshToken(ctx, userID, HashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return pair, nil
}

// Refresh rotates a refresh token into a new session pair. Presenting a
// token that was already rotated away revokes every session of the user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	claims, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("refresh", "invalid").Inc()
		return nil, err
	}
	userID, err := claims.UserIDInt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	pair, err := s.issuer.IssuePair(userID, claims.Email)
	if err != nil {
		return nil, err
	}

	oldHash := HashToken(refreshToken)
	expiresAt := s.clock.Now().Add(s.issuer.RefreshTTL())
	rotated, err := s.store.RotateRefreshToken(ctx, oldHash, userID, HashToken(pair.RefreshToken), expiresAt)
	// Store errors are not token errors: they surface as internal failures.
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !rotated {
		s.handleRejectedRefresh(ctx, oldHash, userID)
		return nil, ErrInvalidRefreshToken
	}

	metrics.AuthEventsTotal.WithLabelValues("refresh", "success").Inc()
	return pair, nil
}

func (s *Service) handleRejectedRefresh(ctx context.Context, tokenHash string, userID int64) {
	existing, err := s.store.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		s.logger.Error("failed to look up rejected refresh token", zap.Error(err))
		return
	}
	if existing == nil || !existing.IsRevoked || existing.UserID != userID {
		metrics.AuthEventsTotal.WithLabelValues("refresh", "unknown").Inc()
		return
	}

	metrics.AuthEventsTotal.WithLabelValues("refresh", "reuse_detected").Inc()
	revoked, err := s.store.RevokeAllRefreshTokens(ctx, userID)
	if err != nil {
		s.logger.Error("failed to revoke sessions after refresh token reuse", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Warn("refresh token reuse detected; revoked all sessions",
		zap.Int64("user_id", userID),
		zap.Int64("revoked", revoked),
	)
}

// Logout revokes a single refresh token. An empty token is a no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.store.RevokeRefreshToken(ctx, HashToken(refreshToken)); err != nil {
		return err
	}
	metrics.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	return nil
}

// LogoutAll revokes every refresh token of the user
func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	revoked, err := s.store.RevokeAllRefreshTokens(ctx, userID)
	if err != nil {
		return err
	}
	metrics.AuthEventsTotal.WithLabelValues("logout_all", "success").Inc()
	s.logger.Info("revoked all sessions", zap.Int64("user_id", userID), zap.Int64("revoked", revoked))
	return nil
}

// CleanupExpiredTokens deletes expired refresh tokens and revoked ones past retention
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	deleted, err := s.store.CleanupRefreshTokens(ctx, s.clock.Now().Add(-RevokedRetention))
	if err != nil {
		return 0, err
	}
	metrics.RefreshTokensCleanedTotal.Add(float64(deleted))
	return deleted, nil
}
