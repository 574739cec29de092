package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidAccessToken  = errors.New("invalid or expired access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Claims is the payload carried by both access and refresh tokens.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair is returned to clients after login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer mints and verifies the session JWTs. Access and refresh tokens
// are signed with different secrets so one can never stand in for the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         clockwork.Clock
}

// NewTokenIssuer creates an issuer with the standard lifetimes
func NewTokenIssuer(accessSecret, refreshSecret string, clock clockwork.Clock) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("jwt secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     AccessTokenTTL,
		refreshTTL:    RefreshTokenTTL,
		clock:         clock,
	}, nil
}

// RefreshTTL is the lifetime recorded alongside stored refresh-token hashes
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssuePair mints a fresh access/refresh pair for the user
func (i *TokenIssuer) IssuePair(userID int64, email string) (*TokenPair, error) {
	access, err := i.sign(userID, email, i.accessSecret, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := i.sign(userID, email, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *TokenIssuer) sign(userID int64, email string, secret []byte, ttl time.Duration) (string, error) {
	now := i.clock.Now()
	claims := Claims{
		UserID: strconv.FormatInt(userID, 10),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccessToken validates an access token and returns its claims
func (i *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	claims, err := i.verify(token, i.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	return claims, nil
}

// VerifyRefreshToken validates a refresh token signature and expiry.
// Revocation is checked separately against the refresh-token store.
func (i *TokenIssuer) VerifyRefreshToken(token string) (*Claims, error) {
	claims, err := i.verify(token, i.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	return claims, nil
}

func (i *TokenIssuer) verify(token string, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, errors.New("token is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := claims.UserIDInt(); err != nil {
		return nil, err
	}
	return claims, nil
}

// UserIDInt returns the numeric user ID carried in the token
func (c *Claims) UserIDInt() (int64, error) {
	id, err := strconv.ParseInt(c.UserID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid userId claim %q", c.UserID)
	}
	return id, nil
}

// HashToken returns the hex SHA-256 of a token for storage and lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// ExtractBearerToken returns the token from an Authorization header value.
// Only the exact "Bearer <token>" form is accepted.
func ExtractBearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return token
}
