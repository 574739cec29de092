package cli

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/config"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/eventsync"
	"github.com/omriShneor/calsync/internal/gcal"
	"github.com/omriShneor/calsync/internal/timeutil"
)

// app holds the wired services shared by the serve, sync and cleanup commands
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	db       *database.DB
	auth     *auth.Service
	calendar *gcal.Service
	sync     *eventsync.Service
}

// newApp validates the configuration, connects and migrates the database and
// builds the services.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.UsesDevSecrets() {
		logger.Warn("using development signing secrets; set JWT_ACCESS_SECRET, JWT_REFRESH_SECRET and SESSION_SECRET")
	}

	clock := clockwork.NewRealClock()

	encryptor, err := auth.NewEncryptor(cfg.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	issuer, err := auth.NewTokenIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, clock)
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	db, err := database.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	loc, fellBack := timeutil.ResolveLocation(cfg.SyncTimezone)
	if fellBack {
		logger.Warn("unknown SYNC_TIMEZONE, using UTC", zap.String("timezone", cfg.SyncTimezone))
	}

	oauthConfig := auth.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	identity := auth.NewGoogleIdentity(oauthConfig)

	authService := auth.NewService(db, identity, encryptor, issuer, clock, logger.Named("auth"))
	calendarService := gcal.NewService(oauthConfig, db, encryptor, clock, logger.Named("gcal"), gcal.Options{Location: loc})
	syncService := eventsync.NewService(calendarService, db, clock, logger.Named("sync"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		db:       db,
		auth:     authService,
		calendar: calendarService,
		sync:     syncService,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}
