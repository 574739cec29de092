package testutil

import (
	"time"

	"google.golang.org/api/calendar/v3"
)

// EventBuilder builds Google Calendar events for tests
type EventBuilder struct {
	event *calendar.Event
}

// NewEventBuilder creates a one-hour timed event starting at 2025-06-10 09:00 UTC
func NewEventBuilder(id string) *EventBuilder {
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	return &EventBuilder{
		event: &calendar.Event{
			Id:       id,
			Summary:  "Test Event " + id,
			Status:   "confirmed",
			HtmlLink: "https://calendar.google.com/event?eid=" + id,
			Start:    &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
			End:      &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
		},
	}
}

// WithSummary sets the title
func (b *EventBuilder) WithSummary(summary string) *EventBuilder {
	b.event.Summary = summary
	return b
}

// At sets a timed start and end
func (b *EventBuilder) At(start, end time.Time) *EventBuilder {
	b.event.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)}
	b.event.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}
	return b
}

// AllDay sets date-only start and exclusive end dates (YYYY-MM-DD)
func (b *EventBuilder) AllDay(startDate, endDate string) *EventBuilder {
	b.event.Start = &calendar.EventDateTime{Date: startDate}
	b.event.End = &calendar.EventDateTime{Date: endDate}
	return b
}

// WithoutStart removes the start
func (b *EventBuilder) WithoutStart() *EventBuilder {
	b.event.Start = nil
	return b
}

// WithAttendee adds an attendee
func (b *EventBuilder) WithAttendee(email, displayName string) *EventBuilder {
	b.event.Attendees = append(b.event.Attendees, &calendar.EventAttendee{
		Email:          email,
		DisplayName:    displayName,
		ResponseStatus: "needsAction",
	})
	return b
}

// Build returns the event
func (b *EventBuilder) Build() *calendar.Event {
	return b.event
}
