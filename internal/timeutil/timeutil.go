package timeutil

import (
	"fmt"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	wallClockLayout = "2006-01-02T15:04:05"
)

// ResolveLocation loads a timezone by name. "" and "Local" mean the process
// location; unknown names fall back to UTC and report fallback=true.
func ResolveLocation(timezone string) (*time.Location, bool) {
	if timezone == "" || timezone == "Local" {
		return time.Local, false
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC, true
	}
	return loc, false
}

// ParseDateAt parses a date-only string (YYYY-MM-DD) in loc at the given clock time.
func ParseDateAt(value string, loc *time.Location, hour, minute, second int) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date value is required")
	}
	if loc == nil {
		loc = time.UTC
	}

	d, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
	}

	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, second, 0, loc), nil
}

// ParseDateTimeIn parses an RFC3339 timestamp, or a wall-clock
// "YYYY-MM-DDTHH:MM:SS" read in the named IANA timezone. A wall-clock value
// without a timezone is rejected.
func ParseDateTimeIn(value, timezone string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("time value is required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if timezone == "" {
		return time.Time{}, fmt.Errorf("unable to parse time: %s (no offset or timezone)", value)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone: %s", timezone)
	}
	t, err := time.ParseInLocation(wallClockLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse time: %s", value)
	}
	return t, nil
}

// EndOfDay returns the last instant of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
