package weg

import "time"

// =============================================================================
// SETTLEMENT YEAR - The period every statement covers
// =============================================================================

// Period is a closed date range [Start, End] at day granularity.
//
// Settlement always runs over a calendar year; bookings may be tagged to
// a different year than their date, see Booking.EffectiveYear.
type Period struct {
	Start time.Time
	End   time.Time
}

// Year returns the calendar-year period.
func Year(year int) Period {
	return Period{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Contains returns true if t falls on a day within the period.
func (p Period) Contains(t time.Time) bool {
	d := normalize(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

// MonthsOwned returns how many months of the year the unit is billed for.
// Ownership starting mid-month counts that month in full.
func MonthsOwned(year int, enteredAt *time.Time) int {
	if enteredAt == nil {
		return 12
	}
	entered := normalize(*enteredAt)
	switch {
	case entered.Year() < year:
		return 12
	case entered.Year() > year:
		return 0
	}
	return 12 - int(entered.Month()) + 1
}

func normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
