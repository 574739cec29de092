package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DevAccessSecret  = "access-secret-dev"
	DevRefreshSecret = "refresh-secret-dev"
	DevSessionSecret = "session-secret-dev"
)

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3001",
}

type Config struct {
	// Required
	DatabaseURL        string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	EncryptionSecret   string

	// Optional with defaults
	AppEnv               string
	HTTPPort             int
	JWTAccessSecret      string
	JWTRefreshSecret     string
	SessionSecret        string
	FrontendURL          string
	AllowedOrigins       []string
	LogLevel             string
	LogFormat            string
	SyncInterval         time.Duration
	TokenCleanupInterval time.Duration
	AuthRateLimit        float64
	AuthRateBurst        int
	TrustedProxies       []string
	SyncTimezone         string
}

func LoadFromEnv() *Config {
	cfg := &Config{
		// Required
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
		EncryptionSecret:   os.Getenv("ENCRYPTION_SECRET"),

		// Optional with defaults
		AppEnv:               getEnvOrDefault("APP_ENV", EnvDevelopment),
		HTTPPort:             getEnvAsIntOrDefault("PORT", 3001),
		JWTAccessSecret:      os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:     os.Getenv("JWT_REFRESH_SECRET"),
		SessionSecret:        os.Getenv("SESSION_SECRET"),
		FrontendURL:          strings.TrimRight(getEnvOrDefault("FRONTEND_URL", "http://127.0.0.1:3000"), "/"),
		AllowedOrigins:       getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "console"),
		SyncInterval:         getEnvAsDurationOrDefault("SYNC_INTERVAL", 0),
		TokenCleanupInterval: getEnvAsDurationOrDefault("TOKEN_CLEANUP_INTERVAL", time.Hour),
		AuthRateLimit:        getEnvAsFloatOrDefault("AUTH_RATE_LIMIT", 1),
		AuthRateBurst:        getEnvAsIntOrDefault("AUTH_RATE_BURST", 10),
		TrustedProxies:       getEnvAsListOrDefault("TRUSTED_PROXIES", nil),
		SyncTimezone:         getEnvOrDefault("SYNC_TIMEZONE", "Local"),
	}

	// Development falls back to well-known secrets; production must set them.
	if !cfg.IsProduction() {
		if cfg.JWTAccessSecret == "" {
			cfg.JWTAccessSecret = DevAccessSecret
		}
		if cfg.JWTRefreshSecret == "" {
			cfg.JWTRefreshSecret = DevRefreshSecret
		}
		if cfg.SessionSecret == "" {
			cfg.SessionSecret = DevSessionSecret
		}
	}

	return cfg
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// UsesDevSecrets reports whether any signing secret is a development default.
func (c *Config) UsesDevSecrets() bool {
	return c.JWTAccessSecret == DevAccessSecret ||
		c.JWTRefreshSecret == DevRefreshSecret ||
		c.SessionSecret == DevSessionSecret
}

// Validate returns the first configuration problem that prevents the server from starting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.GoogleRedirectURI == "" {
		return errors.New("GOOGLE_REDIRECT_URI is required")
	}
	if err := ValidateEncryptionSecret(c.EncryptionSecret); err != nil {
		return err
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required in production")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required in production")
	}
	if c.IsProduction() && c.UsesDevSecrets() {
		return errors.New("development secrets must not be used in production")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.HTTPPort)
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst <= 0 {
		return errors.New("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry: %q", proxy)
		}
	}
	return nil
}

// ValidateEncryptionSecret checks that the secret is 64 hex characters (a 32-byte key).
func ValidateEncryptionSecret(secret string) error {
	if secret == "" {
		return errors.New("ENCRYPTION_SECRET is required")
	}
	key, err := hex.DecodeString(secret)
	if err != nil || len(key) != 32 {
		return errors.New("ENCRYPTION_SECRET must be 64 hex characters (32 bytes)")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault accepts Go durations ("15m") and bare seconds ("900").
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
