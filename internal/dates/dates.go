// Package dates parses the date forms accepted on task and note input.
package dates

import (
	"strings"
	"time"

	"github.com/kuitang/notedesk/internal/errs"
)

// DayLayout is the calendar-day form, read as midnight UTC.
const DayLayout = "2006-01-02"

// MaxOffsetMinutes bounds a UTC offset (UTC+14:00 / UTC-14:00).
const MaxOffsetMinutes = 14 * 60

// Parse accepts YYYY-MM-DD or RFC3339 and returns the instant in UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errs.New(errs.InvalidArgument, "date must be YYYY-MM-DD or RFC3339")
}

// ParseOptional parses s when non-nil and non-empty.
func ParseOptional(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := Parse(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ValidateDay checks a calendar day filter and its UTC offset in minutes.
func ValidateDay(day string, offsetMinutes int) error {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return errs.New(errs.InvalidArgument, "day must be YYYY-MM-DD")
	}
	if offsetMinutes < -MaxOffsetMinutes || offsetMinutes > MaxOffsetMinutes {
		return errs.New(errs.InvalidArgument, "timezone offset out of range")
	}
	return nil
}
