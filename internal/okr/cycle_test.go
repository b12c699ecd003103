package okr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleProgress(t *testing.T) {
	got := CycleProgress(day(2024, 1, 1), day(2024, 1, 11), day(2024, 1, 6), nil)
	assert.Equal(t, CycleTime{CompletedDays: 5, RemainingDays: 5, TotalDays: 10, Percentage: 50}, got)
}

func TestCycleProgressZeroLength(t *testing.T) {
	now := time.Date(2024, 5, 5, 13, 0, 0, 0, time.UTC)
	got := CycleProgress(now, now, now, nil)
	assert.Equal(t, 0, got.TotalDays)
	assert.Equal(t, 0, got.Percentage)
}

func TestCycleProgressClamps(t *testing.T) {
	before := CycleProgress(day(2024, 1, 1), day(2024, 1, 11), day(2023, 12, 1), nil)
	assert.Equal(t, 0, before.CompletedDays)
	assert.Equal(t, 10, before.RemainingDays)

	after := CycleProgress(day(2024, 1, 1), day(2024, 1, 11), day(2024, 3, 1), nil)
	assert.Equal(t, 10, after.CompletedDays)
	assert.Equal(t, 0, after.RemainingDays)
	assert.Equal(t, 100, after.Percentage)

	inverted := CycleProgress(day(2024, 1, 11), day(2024, 1, 1), day(2024, 1, 5), nil)
	assert.Equal(t, CycleTime{}, inverted)
}

func TestCurrentCycle(t *testing.T) {
	cycles := []Cycle{
		{ID: "q2", StartDate: day(2024, 4, 1), EndDate: day(2024, 6, 30), Status: CycleActive},
		{ID: "q1", StartDate: day(2024, 1, 1), EndDate: day(2024, 3, 31), Status: CycleClosed},
	}

	c, ok := CurrentCycle(cycles, day(2024, 5, 1), time.UTC)
	require.True(t, ok)
	assert.Equal(t, "q2", c.ID)

	cycles[1].IsCurrent = true
	c, ok = CurrentCycle(cycles, day(2024, 5, 1), time.UTC)
	require.True(t, ok)
	assert.Equal(t, "q1", c.ID)

	_, ok = CurrentCycle(cycles[:1], day(2025, 1, 1), time.UTC)
	assert.False(t, ok)
}
