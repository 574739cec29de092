package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/metrics"
)

const primaryCalendar = "primary"

var (
	// ErrNoGoogleToken means the user never connected Google or the token row was removed
	ErrNoGoogleToken = errors.New("no Google access token found for user")
	// ErrReauthRequired means the stored credentials can no longer be used
	ErrReauthRequired = errors.New("google authorization is no longer valid; re-authenticate with google to refresh your tokens")
)

// Store is the persistence the calendar service needs. *database.DB implements it.
type Store interface {
	GetGoogleToken(ctx context.Context, userID int64) (*database.GoogleToken, error)
	SaveGoogleToken(ctx context.Context, token *database.GoogleToken) error
	SaveEvent(ctx context.Context, event *database.Event) (*database.Event, error)
}

// Cipher decrypts stored credentials and encrypts refreshed ones
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// Options tune the calendar service
type Options struct {
	// Location is used for all-day events
	Location *time.Location
	// MaxRetries bounds retries of rate-limited or failed upstream calls
	MaxRetries uint64
	// RetryInitialInterval is the first backoff delay
	RetryInitialInterval time.Duration
	// ClientOptions are appended when building API clients (tests set the endpoint)
	ClientOptions []option.ClientOption
}

// Service makes authenticated Google Calendar calls on behalf of users
type Service struct {
	config  *oauth2.Config
	store   Store
	cipher  Cipher
	clock   clockwork.Clock
	logger  *zap.Logger
	options Options
}

// NewService creates a new calendar service
func NewService(config *oauth2.Config, store Store, cipher Cipher, clock clockwork.Clock, logger *zap.Logger, opts Options) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = 500 * time.Millisecond
	}
	return &Service{
		config:  config,
		store:   store,
		cipher:  cipher,
		clock:   clock,
		logger:  logger,
		options: opts,
	}
}

// Location is the timezone used for all-day events
func (s *Service) Location() *time.Location {
	return s.options.Location
}

// calendarFor builds a Calendar API client authorized as the user. Tokens
// refreshed during the calls are written back to the store.
func (s *Service) calendarFor(ctx context.Context, userID int64) (*calendar.Service, error) {
	stored, err := s.store.GetGoogleToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load google token: %w", err)
	}
	if stored == nil || stored.AccessToken == "" {
		return nil, ErrNoGoogleToken
	}

	accessToken, err := s.cipher.Decrypt(stored.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: token decryption failed: %w", ErrReauthRequired, err)
	}
	var refreshToken string
	if stored.RefreshToken != "" {
		refreshToken, err = s.cipher.Decrypt(stored.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: token decryption failed: %w", ErrReauthRequired, err)
		}
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       stored.Expiry,
	}

	source := &persistingTokenSource{
		base:   s.config.TokenSource(ctx, token),
		ctx:    ctx,
		userID: userID,
		last:   token,
		store:  s.store,
		cipher: s.cipher,
		logger: s.logger,
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, source))}, s.options.ClientOptions...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// persistingTokenSource saves tokens that oauth2 refreshed so the next
// request starts from the new access token.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	ctx    context.Context
	userID int64
	store  Store
	cipher Cipher
	logger *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		metrics.GoogleTokenRefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != nil && p.last.AccessToken == token.AccessToken {
		return token, nil
	}

	metrics.GoogleTokenRefreshTotal.WithLabelValues("success").Inc()
	if err := p.persist(token); err != nil {
		p.logger.Warn("failed to persist refreshed google token", zap.Int64("user_id", p.userID), zap.Error(err))
	}
	p.last = token
	return token, nil
}

func (p *persistingTokenSource) persist(token *oauth2.Token) error {
	accessEncrypted, err := p.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}

	// Google only sends a refresh token when it rotates it.
	var refreshEncrypted string
	if token.RefreshToken != "" && (p.last == nil || token.RefreshToken != p.last.RefreshToken) {
		if refreshEncrypted, err = p.cipher.Encrypt(token.RefreshToken); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 5*time.Second)
	defer cancel()
	return p.store.SaveGoogleToken(ctx, &database.GoogleToken{
		UserID:       p.userID,
		AccessToken:  accessEncrypted,
		RefreshToken: refreshEncrypted,
		Expiry:       token.Expiry,
	})
}

// mapError turns credential failures into ErrReauthRequired
func mapError(err error) error {
	if err == nil || errors.Is(err, ErrReauthRequired) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" ||
			(retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
			return fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}

	if strings.Contains(err.Error(), "refresh token is not set") {
		return fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}

	return err
}

// IsReauthError reports whether the user must sign in with Google again
func IsReauthError(err error) bool {
	return errors.Is(err, ErrReauthRequired) || errors.Is(err, ErrNoGoogleToken)
}

// retryable reports whether an upstream error is worth retrying
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
		return true
	}
	if apiErr.Code == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// withRetry runs op with exponential backoff on rate limits and 5xx responses
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.options.RetryInitialInterval
	expBackoff.MaxElapsedTime = 30 * time.Second

	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, s.options.MaxRetries), ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable(err) {
			s.logger.Debug("retrying google calendar call", zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, b)
	return mapError(err)
}
