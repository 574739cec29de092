package gcal

import (
	"context"
	"fmt"

	"google.golang.org/api/calendar/v3"
)

// CalendarInfo represents a Google Calendar
type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"accessRole"`
}

// ListCalendars returns all calendars the user has access to
func (s *Service) ListCalendars(ctx context.Context, userID int64) ([]CalendarInfo, error) {
	svc, err := s.calendarFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	calendars := []CalendarInfo{}
	pageToken := ""
	for {
		var list *calendar.CalendarList
		err := s.withRetry(ctx, func() error {
			call := svc.CalendarList.List().Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var callErr error
			list, callErr = call.Do()
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch calendars: %w", err)
		}

		for _, item := range list.Items {
			if item == nil {
				continue
			}
			calendars = append(calendars, CalendarInfo{
				ID:          item.Id,
				Summary:     item.Summary,
				Description: item.Description,
				TimeZone:    item.TimeZone,
				Primary:     item.Primary,
				AccessRole:  item.AccessRole,
			})
		}

		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	return calendars, nil
}
