// Package hr computes the derived fields of the HR forms: leave day counts,
// worked hours from attendance punches and training due dates.
package hr

import (
	"errors"
	"fmt"
	"math"
	"time"

	"okrdash/internal/calendar"
)

var (
	ErrEndBeforeStart   = errors.New("end is before start")
	ErrHalfDayMultiDay  = errors.New("half day leave must start and end on the same day")
	ErrNegativeBreak    = errors.New("break duration must not be negative")
	ErrBreakExceedsSpan = errors.New("break is longer than the attendance span")
)

// LeaveRequest is a leave form submission.
type LeaveRequest struct {
	Start   time.Time `json:"start_date"`
	End     time.Time `json:"end_date"`
	HalfDay bool      `json:"half_day"`
}

// LeaveDays counts leave days in the request, start and end inclusive. A half
// day request counts 0.5 and must fall on a single calendar day.
func LeaveDays(start, end time.Time, halfDay bool, loc *time.Location) (float64, error) {
	span := calendar.DaysBetween(start, end, loc)
	if span < 0 {
		return 0, fmt.Errorf("leave %s to %s: %w",
			calendar.Day(start, loc).Format(calendar.DateLayout), calendar.Day(end, loc).Format(calendar.DateLayout), ErrEndBeforeStart)
	}
	if halfDay {
		if span != 0 {
			return 0, ErrHalfDayMultiDay
		}
		return 0.5, nil
	}
	return float64(span + 1), nil
}

// Days is LeaveDays for the request.
func (r LeaveRequest) Days(loc *time.Location) (float64, error) {
	return LeaveDays(r.Start, r.End, r.HalfDay, loc)
}

// Attendance is one check-in/check-out pair.
type Attendance struct {
	CheckIn  time.Time     `json:"check_in"`
	CheckOut time.Time     `json:"check_out"`
	Break    time.Duration `json:"break"`
}

// WorkedHours returns the hours between check-in and check-out minus the
// break, rounded to two decimals.
func WorkedHours(checkIn, checkOut time.Time, breakDur time.Duration) (float64, error) {
	if checkOut.Before(checkIn) {
		return 0, fmt.Errorf("check-out %s: %w", checkOut.Format(time.RFC3339), ErrEndBeforeStart)
	}
	if breakDur < 0 {
		return 0, ErrNegativeBreak
	}
	worked := checkOut.Sub(checkIn) - breakDur
	if worked < 0 {
		return 0, ErrBreakExceedsSpan
	}
	return math.Round(worked.Hours()*100) / 100, nil
}

// Hours is WorkedHours for the attendance record.
func (a Attendance) Hours() (float64, error) {
	return WorkedHours(a.CheckIn, a.CheckOut, a.Break)
}

// TrainingAssignment is a training requirement handed to an employee.
type TrainingAssignment struct {
	AssignedAt  time.Time  `json:"assigned_at"`
	DueInDays   int        `json:"due_in_days"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TrainingStatus is the derived due-date view of an assignment.
type TrainingStatus struct {
	DueDate   time.Time `json:"due_date"`
	DaysLeft  int       `json:"days_left"`
	Overdue   bool      `json:"overdue"`
	Completed bool      `json:"completed"`
}

// TrainingDue derives the due date as a calendar date dueInDays after the
// assignment. A training is overdue once today is past the due date and it is
// not completed; completing late still counts as completed.
func TrainingDue(assignedAt time.Time, dueInDays int, completedAt *time.Time, now time.Time, loc *time.Location) TrainingStatus {
	if dueInDays < 0 {
		dueInDays = 0
	}
	due := calendar.AddDays(assignedAt, dueInDays, loc)
	status := TrainingStatus{
		DueDate:   due,
		DaysLeft:  calendar.DaysBetween(calendar.Day(now, loc), due, time.UTC),
		Completed: completedAt != nil && !completedAt.IsZero(),
	}
	if status.Completed {
		status.DaysLeft = 0
		return status
	}
	status.Overdue = status.DaysLeft < 0
	return status
}

// Status is TrainingDue for the assignment.
func (a TrainingAssignment) Status(now time.Time, loc *time.Location) TrainingStatus {
	return TrainingDue(a.AssignedAt, a.DueInDays, a.CompletedAt, now, loc)
}
