package gcal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/timeutil"
)

const (
	// DefaultDaysAhead is used when a caller gives no usable window
	DefaultDaysAhead = 30
	// upcomingMaxResults caps the live upcoming-events listing
	upcomingMaxResults = 50
	// rangePageSize is the page size used when reading a full window
	rangePageSize = 2500

	untitledEvent = "No Title"
)

var ErrInvalidEvent = errors.New("invalid event")

// EventDateTime mirrors Google's start/end object
type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// EventAttendee is an attendee on a calendar event
type EventAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// CalendarEvent is the event shape returned to API clients
type CalendarEvent struct {
	ID          string          `json:"id"`
	Summary     string          `json:"summary"`
	Description string          `json:"description,omitempty"`
	Start       EventDateTime   `json:"start"`
	End         EventDateTime   `json:"end"`
	Location    string          `json:"location,omitempty"`
	Attendees   []EventAttendee `json:"attendees,omitempty"`
	HTMLLink    string          `json:"htmlLink"`
	Status      string          `json:"status"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
}

// CreateEventInput is the body accepted when creating an event
type CreateEventInput struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Start       EventDateTime `json:"start"`
	End         EventDateTime `json:"end"`
	Location    string        `json:"location,omitempty"`
	Attendees   []string      `json:"attendees,omitempty"`
}

// Validate checks the input has a title and parseable start and end
func (in *CreateEventInput) Validate() error {
	if strings.TrimSpace(in.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrInvalidEvent)
	}
	if in.Start.DateTime == "" && in.Start.Date == "" {
		return fmt.Errorf("%w: start is required", ErrInvalidEvent)
	}
	if in.End.DateTime == "" && in.End.Date == "" {
		return fmt.Errorf("%w: end is required", ErrInvalidEvent)
	}

	start, end, _, err := EventTimes(in.toGoogle(), time.UTC)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidEvent)
	}
	return nil
}

func (in *CreateEventInput) toGoogle() *calendar.Event {
	event := &calendar.Event{
		Summary:     strings.TrimSpace(in.Summary),
		Description: in.Description,
		Location:    in.Location,
		Start:       &calendar.EventDateTime{DateTime: in.Start.DateTime, Date: in.Start.Date, TimeZone: in.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: in.End.DateTime, Date: in.End.Date, TimeZone: in.End.TimeZone},
	}
	for _, email := range in.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
	return event
}

// ToCalendarEvent converts a Google event into the API shape
func ToCalendarEvent(item *calendar.Event) CalendarEvent {
	event := CalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		HTMLLink:    item.HtmlLink,
		Status:      item.Status,
		Created:     item.Created,
		Updated:     item.Updated,
	}
	if event.Summary == "" {
		event.Summary = untitledEvent
	}
	if item.Start != nil {
		event.Start = EventDateTime{DateTime: item.Start.DateTime, Date: item.Start.Date, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		event.End = EventDateTime{DateTime: item.End.DateTime, Date: item.End.Date, TimeZone: item.End.TimeZone}
	}
	for _, a := range item.Attendees {
		if a == nil {
			continue
		}
		event.Attendees = append(event.Attendees, EventAttendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return event
}

// EventTimes returns the local start and end of a Google event. All-day
// events start at 00:00:00 of their first day and end at 23:59:59 of their
// last day; Google's all-day end date is exclusive. A missing end falls back
// to the start.
func EventTimes(item *calendar.Event, loc *time.Location) (time.Time, time.Time, bool, error) {
	if item == nil || item.Start == nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("event is missing start")
	}

	if item.Start.DateTime == "" && item.Start.Date != "" {
		if item.End != nil && item.End.DateTime != "" {
			return time.Time{}, time.Time{}, false, fmt.Errorf("all-day start with timed end")
		}
		start, err := timeutil.ParseDateAt(item.Start.Date, loc, 0, 0, 0)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("failed to parse all-day start date: %w", err)
		}
		end := time.Date(start.Year(), start.Month(), start.Day(), 23, 59, 59, 0, loc)
		if item.End != nil && item.End.Date != "" {
			exclusiveEnd, err := timeutil.ParseDateAt(item.End.Date, loc, 23, 59, 59)
			if err != nil {
				return time.Time{}, time.Time{}, false, fmt.Errorf("failed to parse all-day end date: %w", err)
			}
			if last := exclusiveEnd.AddDate(0, 0, -1); !last.Before(end) {
				end = last
			}
		}
		return start, end, true, nil
	}

	if item.End != nil && item.End.DateTime == "" && item.End.Date != "" {
		return time.Time{}, time.Time{}, false, fmt.Errorf("timed start with all-day end")
	}
	start, err := timeutil.ParseDateTimeIn(item.Start.DateTime, item.Start.TimeZone)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to parse start datetime: %w", err)
	}
	end := start
	if item.End != nil && item.End.DateTime != "" {
		if end, err = timeutil.ParseDateTimeIn(item.End.DateTime, item.End.TimeZone); err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("failed to parse end datetime: %w", err)
		}
	}
	return start, end, false, nil
}

// ListUpcomingEvents returns up to 50 events on the primary calendar from now
// until daysAhead days from now.
func (s *Service) ListUpcomingEvents(ctx context.Context, userID int64, daysAhead int) ([]CalendarEvent, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}

	svc, err := s.calendarFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var resp *calendar.Events
	err = s.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = svc.Events.List(primaryCalendar).
			TimeMin(now.Format(time.RFC3339)).
			TimeMax(now.AddDate(0, 0, daysAhead).Format(time.RFC3339)).
			MaxResults(upcomingMaxResults).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar events: %w", err)
	}

	events := make([]CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item != nil {
			events = append(events, ToCalendarEvent(item))
		}
	}
	return events, nil
}

// ListEventsInRange returns every event on the primary calendar between
// timeMin and timeMax, following pagination.
func (s *Service) ListEventsInRange(ctx context.Context, userID int64, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	if timeMax.Before(timeMin) {
		return nil, fmt.Errorf("invalid range: time_max is before time_min")
	}

	svc, err := s.calendarFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	var result []*calendar.Event
	pageToken := ""
	for {
		var page *calendar.Events
		err := s.withRetry(ctx, func() error {
			call := svc.Events.List(primaryCalendar).
				TimeMin(timeMin.Format(time.RFC3339)).
				TimeMax(timeMax.Format(time.RFC3339)).
				MaxResults(rangePageSize).
				SingleEvents(true).
				ShowDeleted(false).
				OrderBy("startTime").
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var callErr error
			page, callErr = call.Do()
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list events in range: %w", err)
		}

		for _, item := range page.Items {
			if item != nil {
				result = append(result, item)
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return result, nil
}

// CreateEvent inserts an event on the primary calendar and caches it locally
func (s *Service) CreateEvent(ctx context.Context, userID int64, input CreateEventInput) (*CalendarEvent, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	svc, err := s.calendarFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	var created *calendar.Event
	err = s.withRetry(ctx, func() error {
		var callErr error
		created, callErr = svc.Events.Insert(primaryCalendar, input.toGoogle()).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar event: %w", err)
	}

	start, end, _, err := EventTimes(created, s.options.Location)
	if err == nil && created.Id != "" {
		name := strings.TrimSpace(created.Summary)
		if name == "" {
			name = untitledEvent
		}
		_, err = s.store.SaveEvent(ctx, &database.Event{
			UserID:        userID,
			GoogleEventID: created.Id,
			Name:          name,
			StartDateTime: start,
			EndDateTime:   end,
		})
	}
	if err != nil {
		// The event exists on Google; the next sync will cache it.
		s.logger.Warn("failed to cache created event", zap.Int64("user_id", userID), zap.String("event_id", created.Id), zap.Error(err))
	}

	event := ToCalendarEvent(created)
	return &event, nil
}
