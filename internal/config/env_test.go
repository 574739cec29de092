package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/calsync")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_REDIRECT_URI", "http://localhost:3001/auth/google/callback")
	t.Setenv("ENCRYPTION_SECRET", testSecret)
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("APP_ENV", "")
		t.Setenv("JWT_ACCESS_SECRET", "")
		t.Setenv("JWT_REFRESH_SECRET", "")
		t.Setenv("SESSION_SECRET", "")
		t.Setenv("PORT", "")
		t.Setenv("CORS_ALLOWED_ORIGINS", "")
		t.Setenv("SYNC_INTERVAL", "")
		t.Setenv("FRONTEND_URL", "")
		t.Setenv("TRUSTED_PROXIES", "")

		cfg := LoadFromEnv()
		assert.Equal(t, EnvDevelopment, cfg.AppEnv)
		assert.Equal(t, 3001, cfg.HTTPPort)
		assert.Equal(t, DevAccessSecret, cfg.JWTAccessSecret)
		assert.Equal(t, DevRefreshSecret, cfg.JWTRefreshSecret)
		assert.Equal(t, DevSessionSecret, cfg.SessionSecret)
		assert.Equal(t, "http://127.0.0.1:3000", cfg.FrontendURL)
		assert.Len(t, cfg.AllowedOrigins, 4)
		assert.Equal(t, time.Duration(0), cfg.SyncInterval)
		assert.Equal(t, time.Hour, cfg.TokenCleanupInterval)
		assert.Empty(t, cfg.TrustedProxies)
		assert.True(t, cfg.UsesDevSecrets())
		require.NoError(t, cfg.Validate())
	})

	t.Run("overrides", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("SYNC_INTERVAL", "15m")
		t.Setenv("TOKEN_CLEANUP_INTERVAL", "120")
		t.Setenv("FRONTEND_URL", "https://app.example/")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10")

		cfg := LoadFromEnv()
		assert.Equal(t, 8080, cfg.HTTPPort)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
		assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
		assert.Equal(t, 2*time.Minute, cfg.TokenCleanupInterval)
		assert.Equal(t, "https://app.example", cfg.FrontendURL)
		assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.TrustedProxies)
	})

	t.Run("production requires explicit secrets", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("APP_ENV", EnvProduction)
		t.Setenv("JWT_ACCESS_SECRET", "")
		t.Setenv("JWT_REFRESH_SECRET", "")
		t.Setenv("SESSION_SECRET", "")

		cfg := LoadFromEnv()
		assert.Empty(t, cfg.JWTAccessSecret)
		assert.Empty(t, cfg.SessionSecret)
		assert.Error(t, cfg.Validate())

		t.Setenv("JWT_ACCESS_SECRET", DevAccessSecret)
		t.Setenv("JWT_REFRESH_SECRET", "prod-refresh")
		assert.Error(t, LoadFromEnv().Validate())

		t.Setenv("JWT_ACCESS_SECRET", "prod-access")
		assert.Error(t, LoadFromEnv().Validate(), "session secret still missing")

		t.Setenv("SESSION_SECRET", "prod-session")
		assert.NoError(t, LoadFromEnv().Validate())
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:        "postgres://localhost/calsync",
			GoogleClientID:     "id",
			GoogleClientSecret: "secret",
			GoogleRedirectURI:  "http://localhost/cb",
			EncryptionSecret:   testSecret,
			AppEnv:             EnvDevelopment,
			HTTPPort:           3001,
			JWTAccessSecret:    "a",
			JWTRefreshSecret:   "b",
			SessionSecret:      "c",
			AuthRateLimit:      1,
			AuthRateBurst:      10,
		}
	}

	require.NoError(t, base().Validate())

	withProxies := base()
	withProxies.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.10", "2001:db8::/32"}
	require.NoError(t, withProxies.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }},
		{"missing google client", func(c *Config) { c.GoogleClientSecret = "" }},
		{"missing redirect", func(c *Config) { c.GoogleRedirectURI = "" }},
		{"short encryption secret", func(c *Config) { c.EncryptionSecret = "abcd" }},
		{"non-hex encryption secret", func(c *Config) { c.EncryptionSecret = testSecret[:62] + "zz" }},
		{"missing session secret", func(c *Config) { c.SessionSecret = "" }},
		{"same jwt secrets", func(c *Config) { c.JWTRefreshSecret = c.JWTAccessSecret }},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }},
		{"bad rate", func(c *Config) { c.AuthRateBurst = 0 }},
		{"bad trusted proxy", func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/8", "proxy.internal"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
