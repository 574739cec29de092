package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	// HTTPRequestDuration tracks request latency by method, route pattern and status
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calsync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method, route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// RateLimitedRequests counts requests rejected by the auth rate limiter
	RateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calsync_rate_limited_requests_total",
			Help: "Total requests rejected by the per-IP rate limiter",
		},
	)
)

// Auth Metrics
var (
	// AuthEventsTotal tracks login, refresh and logout outcomes
	AuthEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_auth_events_total",
			Help: "Authentication events by event and result",
		},
		[]string{"event", "result"},
	)

	// GoogleTokenRefreshTotal tracks refreshes of stored Google access tokens
	GoogleTokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_google_token_refresh_total",
			Help: "Google access token refreshes by result",
		},
		[]string{"result"},
	)
)

// Sync Metrics
var (
	// SyncRunsTotal tracks calendar sync runs by status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_sync_runs_total",
			Help: "Calendar sync runs by status",
		},
		[]string{"status"},
	)

	// SyncEventsTotal tracks events handled by sync, by outcome (synced/skipped/removed)
	SyncEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_sync_events_total",
			Help: "Events handled by calendar sync by outcome",
		},
		[]string{"outcome"},
	)

	// SyncDuration tracks how long a single user's sync takes
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calsync_sync_duration_seconds",
			Help:    "Duration of a single user's calendar sync in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// RefreshTokensCleanedTotal counts refresh-token rows removed by cleanup
	RefreshTokensCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calsync_refresh_tokens_cleaned_total",
			Help: "Total expired or revoked refresh tokens deleted",
		},
	)
)
