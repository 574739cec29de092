package eventsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/gcal"
	"github.com/omriShneor/calsync/internal/metrics"
	"github.com/omriShneor/calsync/internal/timeutil"
)

const (
	windowMonths = 6

	defaultDaysAhead = 30
	maxDaysAhead     = 365
)

// CalendarSource reads a user's events from Google. *gcal.Service implements it.
type CalendarSource interface {
	ListEventsInRange(ctx context.Context, userID int64, timeMin, timeMax time.Time) ([]*calendar.Event, error)
	Location() *time.Location
}

// Store is the persistence the sync service needs. *database.DB implements it.
type Store interface {
	BulkUpsertEvents(ctx context.Context, events []database.Event) (int, error)
	DeleteStaleEvents(ctx context.Context, userID int64, from, to time.Time, keepIDs []string) (int64, error)
	ListUpcomingEvents(ctx context.Context, userID int64, from, to time.Time) ([]database.Event, error)
	ListUsersWithGoogleToken(ctx context.Context) ([]int64, error)
}

// Result summarizes a single user's sync
type Result struct {
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Removed int64  `json:"removed"`
	Message string `json:"message"`
}

// Summary aggregates a sync over every connected user
type Summary struct {
	Users      int `json:"users"`
	Failed     int `json:"failed"`
	NeedReauth int `json:"needReauth"`
	Synced     int `json:"synced"`
}

// Service copies Google Calendar events into the local events table
type Service struct {
	source CalendarSource
	store  Store
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewService creates a new sync service
func NewService(source CalendarSource, store Store, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, store: store, clock: clock, logger: logger}
}

// SyncUserEvents pulls six months back and six months forward from Google,
// upserts them, and removes local rows in that window Google no longer has.
func (s *Service) SyncUserEvents(ctx context.Context, userID int64) (*Result, error) {
	start := s.clock.Now()
	defer func() {
		metrics.SyncDuration.Observe(s.clock.Since(start).Seconds())
	}()

	timeMin := start.AddDate(0, -windowMonths, 0)
	timeMax := start.AddDate(0, windowMonths, 0)

	items, err := s.source.ListEventsInRange(ctx, userID, timeMin, timeMax)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	events, skipped := s.toRows(userID, items)
	metrics.SyncEventsTotal.WithLabelValues("skipped").Add(float64(skipped))

	if len(items) == 0 {
		removed, err := s.prune(ctx, userID, timeMin, timeMax, nil)
		if err != nil {
			s.recordFailure(err)
			return nil, err
		}
		metrics.SyncRunsTotal.WithLabelValues("success").Inc()
		return &Result{Removed: removed, Message: "No events found to sync"}, nil
	}

	synced, err := s.store.BulkUpsertEvents(ctx, events)
	if err != nil {
		s.recordFailure(err)
		return nil, fmt.Errorf("failed to save events: %w", err)
	}
	metrics.SyncEventsTotal.WithLabelValues("synced").Add(float64(synced))

	keep := make([]string, 0, len(events))
	for _, e := range events {
		keep = append(keep, e.GoogleEventID)
	}
	removed, err := s.prune(ctx, userID, timeMin, timeMax, keep)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	metrics.SyncRunsTotal.WithLabelValues("success").Inc()
	s.logger.Info("synced calendar events",
		zap.Int64("user_id", userID),
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int64("removed", removed),
	)

	return &Result{
		Synced:  synced,
		Skipped: skipped,
		Removed: removed,
		Message: fmt.Sprintf("Successfully synced %d events from Google Calendar (%d months back to %d months forward)", synced, windowMonths, windowMonths),
	}, nil
}

// toRows converts Google events into rows, skipping ones without an id,
// a title or a parseable start.
func (s *Service) toRows(userID int64, items []*calendar.Event) ([]database.Event, int) {
	loc := s.source.Location()
	rows := make([]database.Event, 0, len(items))
	skipped := 0

	for _, item := range items {
		name := strings.TrimSpace(item.Summary)
		if item.Id == "" || name == "" {
			skipped++
			continue
		}

		start, end, _, err := gcal.EventTimes(item, loc)
		if err != nil {
			s.logger.Debug("skipping event without usable times", zap.String("event_id", item.Id), zap.Error(err))
			skipped++
			continue
		}

		rows = append(rows, database.Event{
			UserID:        userID,
			GoogleEventID: item.Id,
			Name:          name,
			StartDateTime: start,
			EndDateTime:   end,
		})
	}
	return rows, skipped
}

func (s *Service) prune(ctx context.Context, userID int64, from, to time.Time, keep []string) (int64, error) {
	removed, err := s.store.DeleteStaleEvents(ctx, userID, from, to, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to remove stale events: %w", err)
	}
	metrics.SyncEventsTotal.WithLabelValues("removed").Add(float64(removed))
	return removed, nil
}

func (s *Service) recordFailure(err error) {
	status := "error"
	if gcal.IsReauthError(err) {
		status = "reauth_required"
	}
	metrics.SyncRunsTotal.WithLabelValues(status).Inc()
}

// GetEventsFromDatabase lists cached events from now until daysAhead days
// ahead. One day means until the end of today.
func (s *Service) GetEventsFromDatabase(ctx context.Context, userID int64, daysAhead int) ([]database.Event, error) {
	daysAhead = NormalizeDays(daysAhead)

	now := s.clock.Now()
	until := now.AddDate(0, 0, daysAhead)
	if daysAhead == 1 {
		until = timeutil.EndOfDay(now.In(s.source.Location()))
	}

	events, err := s.store.ListUpcomingEvents(ctx, userID, now, until)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events from database: %w", err)
	}
	return events, nil
}

// NormalizeDays applies the default and the cap to a requested day count
func NormalizeDays(days int) int {
	if days <= 0 {
		return defaultDaysAhead
	}
	if days > maxDaysAhead {
		return maxDaysAhead
	}
	return days
}

// SyncAllUsers syncs every user with a stored Google token, one at a time.
// A failing user is logged and skipped.
func (s *Service) SyncAllUsers(ctx context.Context) (Summary, error) {
	userIDs, err := s.store.ListUsersWithGoogleToken(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list users: %w", err)
	}

	summary := Summary{Users: len(userIDs)}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		result, err := s.SyncUserEvents(ctx, userID)
		if err != nil {
			summary.Failed++
			if gcal.IsReauthError(err) {
				summary.NeedReauth++
				s.logger.Warn("user needs to reconnect google", zap.Int64("user_id", userID))
				continue
			}
			s.logger.Error("failed to sync user", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		summary.Synced += result.Synced
	}
	return summary, nil
}
