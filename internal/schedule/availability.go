package schedule

import (
	"fmt"
	"time"

	"github.com/aksara-edu/bimbel-api/internal/models"
)

// CheckAvailability decides whether a teacher may teach during the half-open
// candidate interval [start, end). All reasoning happens in UTC: callers must
// hand in instants already resolved to the organization's reference timezone.
//
// Priority order: blocking exceptions always win, then opening exceptions,
// then the recurring weekly schedule. A negative verdict is a normal result,
// not an error; errors only signal malformed input.
func CheckAvailability(slots []models.WeeklySlot, exceptions []models.AvailabilityException, start, end time.Time) (models.AvailabilityResult, error) {
	if !start.Before(end) {
		return models.AvailabilityResult{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	days := splitByDay(start.UTC(), end.UTC())

	// An explicit block anywhere inside the candidate always wins.
	for _, ex := range exceptions {
		if ex.Kind != models.ExceptionUnavailable {
			continue
		}
		hit, err := exceptionBlocks(ex, days)
		if err != nil {
			return models.AvailabilityResult{}, err
		}
		if hit {
			reason := ex.Reason
			if reason == "" {
				reason = "teacher is unavailable during this time"
			}
			return models.AvailabilityResult{Available: false, Reason: reason}, nil
		}
	}

	// Opening overrides: every day slice of the candidate must be covered by
	// an AVAILABLE exception for the override to apply.
	opened := true
	for _, day := range days {
		ok, err := dayOpened(exceptions, day)
		if err != nil {
			return models.AvailabilityResult{}, err
		}
		if !ok {
			opened = false
			break
		}
	}
	if opened {
		return models.AvailabilityResult{Available: true}, nil
	}

	// Weekly schedule. A slot never spans midnight, so a candidate crossing
	// midnight can never fit a slot; report it unavailable rather than
	// wrapping onto the next day.
	if len(days) > 1 {
		return models.AvailabilityResult{
			Available: false,
			Reason:    "lesson spans multiple days and no availability override covers it",
		}, nil
	}

	day := days[0]
	for _, slot := range slots {
		if slot.DayOfWeek != int(day.date.Weekday()) {
			continue
		}
		slotStart, err := ParseClock(slot.StartTime)
		if err != nil {
			return models.AvailabilityResult{}, err
		}
		slotEnd, err := ParseClock(slot.EndTime)
		if err != nil {
			return models.AvailabilityResult{}, err
		}
		// Boundary touches are inclusive: a 10:00-11:00 candidate fits a
		// 10:00-11:00 slot.
		if slotStart <= day.from && day.to <= slotEnd {
			return models.AvailabilityResult{Available: true}, nil
		}
	}

	return models.AvailabilityResult{
		Available: false,
		Reason:    fmt.Sprintf("teacher is not available on %s between %s and %s", day.date.Weekday(), day.from, day.to),
	}, nil
}

// daySlice is the portion of a candidate interval falling on one calendar
// date, expressed as a half-open clock window [from, to).
type daySlice struct {
	date time.Time
	from ClockMinutes
	to   ClockMinutes
}

func splitByDay(start, end time.Time) []daySlice {
	first := dateOf(start)
	last := dateOf(end.Add(-time.Nanosecond))

	var out []daySlice
	for cur := first; !cur.After(last); cur = cur.AddDate(0, 0, 1) {
		slice := daySlice{date: cur, from: 0, to: minutesPerDay}
		if cur.Equal(first) {
			slice.from = clockOf(start)
		}
		if cur.Equal(last) && dateOf(end).Equal(last) {
			slice.to = clockOf(end)
		}
		out = append(out, slice)
	}
	return out
}

// exceptionBlocks reports whether an UNAVAILABLE exception touches any part
// of the candidate. Overlap suffices; a block need not cover the whole
// interval to deny it.
func exceptionBlocks(ex models.AvailabilityException, days []daySlice) (bool, error) {
	for _, day := range days {
		inRange, err := exceptionCoversDate(ex, day.date)
		if err != nil {
			return false, err
		}
		if !inRange {
			continue
		}
		if ex.AllDay {
			return true, nil
		}
		from, to, err := exceptionWindow(ex)
		if err != nil {
			return false, err
		}
		if from < day.to && to > day.from {
			return true, nil
		}
	}
	return false, nil
}

// dayOpened reports whether some AVAILABLE exception fully contains the day
// slice. Unlike blocks, an opening must cover the candidate to apply.
func dayOpened(exceptions []models.AvailabilityException, day daySlice) (bool, error) {
	for _, ex := range exceptions {
		if ex.Kind != models.ExceptionAvailable {
			continue
		}
		inRange, err := exceptionCoversDate(ex, day.date)
		if err != nil {
			return false, err
		}
		if !inRange {
			continue
		}
		if ex.AllDay {
			return true, nil
		}
		from, to, err := exceptionWindow(ex)
		if err != nil {
			return false, err
		}
		if from <= day.from && day.to <= to {
			return true, nil
		}
	}
	return false, nil
}

func exceptionCoversDate(ex models.AvailabilityException, date time.Time) (bool, error) {
	startDate, err := ParseDate(ex.StartDate)
	if err != nil {
		return false, err
	}
	endDate, err := ParseDate(ex.EndDate)
	if err != nil {
		return false, err
	}
	return !date.Before(startDate) && !date.After(endDate), nil
}

func exceptionWindow(ex models.AvailabilityException) (ClockMinutes, ClockMinutes, error) {
	from, err := ParseClock(ex.StartTime)
	if err != nil {
		return 0, 0, err
	}
	to, err := ParseClock(ex.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}
