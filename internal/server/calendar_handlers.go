package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/eventsync"
	"github.com/omriShneor/calsync/internal/gcal"
)

// respondCalendarError maps Google credential failures to 401 with
// requiresReauth; anything else is a 500 with the given fallback message.
func (s *Server) respondCalendarError(w http.ResponseWriter, userID int64, err error, fallback string) {
	switch {
	case errors.Is(err, gcal.ErrNoGoogleToken):
		respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success":        false,
			"message":        "No Google access token found. Please sign in with Google again.",
			"requiresReauth": true,
		})
	case errors.Is(err, gcal.ErrReauthRequired):
		respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success":        false,
			"message":        "Google authorization expired. Please re-authenticate with Google.",
			"requiresReauth": true,
		})
	default:
		s.logger.Error(fallback, zap.Int64("user_id", userID), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": fallback,
		})
	}
}

// handleSyncEvents pulls the user's Google events into Postgres
// POST /calendar/sync
func (s *Server) handleSyncEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := s.sync.SyncUserEvents(r.Context(), user.ID)
	if err != nil {
		s.respondCalendarError(w, user.ID, err, "Failed to sync events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"synced":  result.Synced,
		"skipped": result.Skipped,
		"removed": result.Removed,
		"message": result.Message,
	})
}

// handleListStoredEvents lists synced events from Postgres
// GET /calendar/events/db?days=30
func (s *Server) handleListStoredEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	events, err := s.sync.GetEventsFromDatabase(r.Context(), user.ID, parseDays(r))
	if err != nil {
		s.respondCalendarError(w, user.ID, err, "Failed to fetch events from database")
		return
	}
	if events == nil {
		events = []database.Event{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

// handleListLiveEvents lists upcoming events straight from Google
// GET /calendar/events?days=30
func (s *Server) handleListLiveEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	events, err := s.calendar.ListUpcomingEvents(r.Context(), user.ID, eventsync.NormalizeDays(parseDays(r)))
	if err != nil {
		s.respondCalendarError(w, user.ID, err, "Failed to fetch calendar events")
		return
	}
	if events == nil {
		events = []gcal.CalendarEvent{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

// handleCreateEvent creates an event on the user's primary calendar
// POST /calendar/events
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var input gcal.CreateEventInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "Invalid request body",
		})
		return
	}
	if err := input.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	event, err := s.calendar.CreateEvent(r.Context(), user.ID, input)
	if err != nil {
		s.respondCalendarError(w, user.ID, err, "Failed to create calendar event")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"event":   event,
	})
}

// handleListCalendars lists the calendars the user can see
// GET /calendar/calendars
func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	calendars, err := s.calendar.ListCalendars(r.Context(), user.ID)
	if err != nil {
		s.respondCalendarError(w, user.ID, err, "Failed to fetch calendars")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"calendars": calendars,
	})
}
