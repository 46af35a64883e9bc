package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for malformed input. The service layer maps these to
// validation failures; they are never produced for a legitimate "no" verdict.
var (
	ErrInvalidInterval = errors.New("interval start must be before end")
	ErrInvalidClock    = errors.New("clock time must be 24-hour HH:MM")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
)

// ClockMinutes is a time of day expressed as minutes from midnight. Interval
// ends may equal 1440, meaning midnight at the end of the day.
type ClockMinutes int

const minutesPerDay ClockMinutes = 24 * 60

// ParseClock parses a strict 24-hour "HH:MM" string.
func ParseClock(raw string) (ClockMinutes, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	hour, ok1 := twoDigits(raw[0], raw[1])
	minute, ok2 := twoDigits(raw[3], raw[4])
	if !ok1 || !ok2 || hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return ClockMinutes(hour*60 + minute), nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// String renders the time of day back to "HH:MM".
func (m ClockMinutes) String() string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseDate parses a "YYYY-MM-DD" calendar date at UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// clockOf returns the minutes elapsed since UTC midnight of t, ignoring
// sub-minute precision.
func clockOf(t time.Time) ClockMinutes {
	return ClockMinutes(t.Hour()*60 + t.Minute())
}

// dateOf truncates t to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
