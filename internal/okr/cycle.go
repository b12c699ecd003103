package okr

import (
	"math"
	"sort"
	"time"

	"okrdash/internal/calendar"
)

// CycleTime is the dashboard view of how far a cycle has run.
type CycleTime struct {
	CompletedDays int `json:"completed_days"`
	RemainingDays int `json:"remaining_days"`
	TotalDays     int `json:"total_days"`
	Percentage    int `json:"percentage"`
}

// CycleProgress counts whole calendar days in loc (UTC when nil) between start,
// end and now. Completed days are clamped to the cycle length.
func CycleProgress(start, end, now time.Time, loc *time.Location) CycleTime {
	total := calendar.DaysBetween(start, end, loc)
	if total < 0 {
		total = 0
	}
	completed := calendar.DaysBetween(start, now, loc)
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}

	ct := CycleTime{
		CompletedDays: completed,
		RemainingDays: total - completed,
		TotalDays:     total,
	}
	if total > 0 {
		ct.Percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return ct
}

// Progress is CycleProgress for the cycle's own dates.
func (c Cycle) Progress(now time.Time, settings Settings) CycleTime {
	return CycleProgress(c.StartDate, c.EndDate, now, settings.location())
}

// Contains reports whether now falls on a calendar day inside the cycle.
func (c Cycle) Contains(now time.Time, loc *time.Location) bool {
	day := calendar.Day(now, loc)
	return !day.Before(calendar.Day(c.StartDate, loc)) && !day.After(calendar.Day(c.EndDate, loc))
}

// CurrentCycle picks the cycle flagged current, earliest start first when more
// than one is flagged. Without a flag it falls back to an active cycle that
// contains now.
func CurrentCycle(cycles []Cycle, now time.Time, loc *time.Location) (Cycle, bool) {
	sorted := append([]Cycle(nil), cycles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartDate.Equal(sorted[j].StartDate) {
			return sorted[i].StartDate.Before(sorted[j].StartDate)
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, c := range sorted {
		if c.IsCurrent {
			return c, true
		}
	}
	for _, c := range sorted {
		if c.Status == CycleActive && c.Contains(now, loc) {
			return c, true
		}
	}
	return Cycle{}, false
}
