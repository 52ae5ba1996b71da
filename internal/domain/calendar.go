package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDate is returned when a date argument is missing or outside the
// supported range.
var ErrInvalidDate = errors.New("invalid date")

const millisecond = time.Millisecond

// StartOfDay returns 00:00:00.000 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999 of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-millisecond)
}

// MonthBounds returns the first instant and the last millisecond of the
// calendar month containing t, both in loc.
func MonthBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 1, 0).Add(-millisecond)
	return start, end
}

// ValidateMonth rejects zero and out-of-range dates.
func ValidateMonth(t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: month is required", ErrInvalidDate)
	}
	if y := t.Year(); y < 1970 || y > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, y)
	}
	return nil
}

var monthLayouts = []string{"2006-01", "2006-01-02", time.RFC3339Nano}

// ParseMonth accepts "2006-01", "2006-01-02" or an RFC 3339 timestamp and
// returns a time inside the requested month, interpreted in loc.
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: month is required", ErrInvalidDate)
	}
	for _, layout := range monthLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, ValidateMonth(t)
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidDate, s)
}

// EndsBefore reports whether the whole plan window lies before today.
func (p PlanAssignment) EndsBefore(today time.Time, loc *time.Location) bool {
	return EndOfDay(p.PlanEndDate, loc).Before(today)
}
