package shared

import (
	"fmt"
	"time"
)

const (
	// DayLayout is the format layout for calendar days.
	DayLayout = "2006-01-02"
	// hoursPerDay is the number of hours in a UTC day.
	hoursPerDay = 24
)

// TruncateDay returns the start of the provided time's UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses the provided calendar day.
func ParseDay(s string) (time.Time, error) {
	day, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day %q: %w", s, err)
	}

	return day, nil
}

// Window represents a half-open range of calendar days, [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / hoursPerDay)
}

// Contains reports whether the provided time falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// String stringifies the window.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(DayLayout), w.End.Format(DayLayout))
}

// PartitionWindows splits [from, to) into consecutive windows spanning at
// most maxDays each, in chronological order.
func PartitionWindows(from time.Time, to time.Time, maxDays int) ([]Window, error) {
	if maxDays <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", maxDays)
	}

	start := TruncateDay(from)
	end := TruncateDay(to)
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range: %s is not before %s",
			start.Format(DayLayout), end.Format(DayLayout))
	}

	span := Window{Start: start, End: end}
	windows := make([]Window, 0, span.Days()/maxDays+1)
	for cur := start; cur.Before(end); {
		next := cur.AddDate(0, 0, maxDays)
		if next.After(end) {
			next = end
		}

		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}

	return windows, nil
}
