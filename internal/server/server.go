package server

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/eventsync"
	"github.com/omriShneor/calsync/internal/gcal"
)

// AuthService is the login and session API. *auth.Service implements it.
type AuthService interface {
	LoginURL(state string) string
	CompleteLogin(ctx context.Context, code string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) error
	VerifyAccessToken(token string) (*auth.Claims, error)
}

// CalendarService is the live Google Calendar API. *gcal.Service implements it.
type CalendarService interface {
	ListUpcomingEvents(ctx context.Context, userID int64, daysAhead int) ([]gcal.CalendarEvent, error)
	CreateEvent(ctx context.Context, userID int64, input gcal.CreateEventInput) (*gcal.CalendarEvent, error)
	ListCalendars(ctx context.Context, userID int64) ([]gcal.CalendarInfo, error)
}

// SyncService copies events into Postgres and reads them back. *eventsync.Service implements it.
type SyncService interface {
	SyncUserEvents(ctx context.Context, userID int64) (*eventsync.Result, error)
	GetEventsFromDatabase(ctx context.Context, userID int64, daysAhead int) ([]database.Event, error)
}

// HealthChecker pings the database. *database.DB implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds everything the HTTP server needs
type Config struct {
	Port           int
	AppEnv         string
	FrontendURL    string
	AllowedOrigins []string
	SessionSecret  string
	AuthRateLimit  float64
	AuthRateBurst  int
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is believed
	TrustedProxies []string

	Auth     AuthService
	Calendar CalendarService
	Sync     SyncService
	Health   HealthChecker

	Clock  clockwork.Clock
	Logger *zap.Logger
}

type Server struct {
	auth     AuthService
	calendar CalendarService
	sync     SyncService
	health   HealthChecker

	authMiddleware *auth.Middleware
	authLimiter    *IPRateLimiter
	trustedProxies []netip.Prefix
	sessionStore   *sessions.CookieStore

	appEnv         string
	frontendURL    string
	allowedOrigins map[string]bool
	production     bool

	clock   clockwork.Clock
	logger  *zap.Logger
	httpSrv *http.Server
	port    int
}

func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 1
	}
	if cfg.AuthRateBurst <= 0 {
		cfg.AuthRateBurst = 10
	}

	s := &Server{
		auth:           cfg.Auth,
		calendar:       cfg.Calendar,
		sync:           cfg.Sync,
		health:         cfg.Health,
		authMiddleware: auth.NewMiddleware(cfg.Auth),
		authLimiter:    NewIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst, cfg.Clock),
		sessionStore:   newSessionStore(cfg.SessionSecret, cfg.AppEnv == "production"),
		appEnv:         cfg.AppEnv,
		frontendURL:    cfg.FrontendURL,
		allowedOrigins: make(map[string]bool, len(cfg.AllowedOrigins)),
		production:     cfg.AppEnv == "production",
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		port:           cfg.Port,
	}
	for _, origin := range cfg.AllowedOrigins {
		s.allowedOrigins[origin] = true
	}
	trusted, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		s.logger.Warn("ignoring trusted proxies; rate limiting by socket address", zap.Error(err))
	} else {
		s.trustedProxies = trusted
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.requestLogger(s.corsMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	requireAuth := s.authMiddleware.RequireAuth

	// Health check
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth API
	mux.Handle("GET /auth/google", s.rateLimit(http.HandlerFunc(s.handleGoogleLogin)))
	mux.Handle("GET /auth/google/callback", s.rateLimit(http.HandlerFunc(s.handleGoogleCallback)))
	mux.Handle("POST /auth/refresh", s.rateLimit(http.HandlerFunc(s.handleRefresh)))
	mux.Handle("POST /auth/logout", s.rateLimit(http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /auth/logout-all", s.rateLimit(requireAuth(http.HandlerFunc(s.handleLogoutAll))))
	mux.Handle("GET /auth/verify", s.rateLimit(requireAuth(http.HandlerFunc(s.handleVerify))))

	// Calendar API
	mux.Handle("POST /calendar/sync", requireAuth(http.HandlerFunc(s.handleSyncEvents)))
	mux.Handle("GET /calendar/events/db", requireAuth(http.HandlerFunc(s.handleListStoredEvents)))
	mux.Handle("GET /calendar/events", requireAuth(http.HandlerFunc(s.handleListLiveEvents)))
	mux.Handle("POST /calendar/events", requireAuth(http.HandlerFunc(s.handleCreateEvent)))
	mux.Handle("GET /calendar/calendars", requireAuth(http.HandlerFunc(s.handleListCalendars)))
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", fmt.Sprintf("http://localhost:%d", s.port)))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// corsMiddleware allows the configured frontends, or any origin outside
// production. Credentials are allowed, so the origin is echoed back.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.allowedOrigins[origin] || !s.production) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cookie")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
