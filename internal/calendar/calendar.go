// Package calendar implements calendar-day arithmetic shared by the OKR cycle
// calculations and the HR derived fields.
//
// Every instant is first converted into a reference location and reduced to
// its calendar date. Differences are then counted in whole days between UTC
// midnights, so daylight-saving shifts in the reference location never produce
// fractional days.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical YYYY-MM-DD layout used in documents and records.
const DateLayout = "2006-01-02"

// Day returns the calendar date of t in loc as a UTC midnight.
// A nil loc means UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da := Day(a, loc)
	db := Day(b, loc)
	return int(db.Sub(da).Hours() / 24)
}

// AddDays returns the calendar date d days after t.
func AddDays(t time.Time, days int, loc *time.Location) time.Time {
	return Day(t, loc).AddDate(0, 0, days)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 values.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return ts, nil
}

// LoadLocation resolves a timezone name, defaulting to UTC for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", name, err)
	}
	return loc, nil
}
