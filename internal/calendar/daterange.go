package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DayFormat is the wire and storage format for calendar days.
const DayFormat = "2006-01-02"

var (
	// ErrInvalidRange means the start day lies after the end day.
	ErrInvalidRange = errors.New("range start must be before end")
	// ErrZeroDuration means start and end fall on the same day.
	ErrZeroDuration = errors.New("range spans zero days")
)

// DateRange is a half-open interval of calendar days [Start, End).
// Both bounds are normalized to midnight UTC, so arithmetic is immune
// to daylight-saving shifts. The end day itself is not part of the range.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a validated range. The end day must come strictly
// after the start day.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s := Day(start)
	e := Day(end)
	if s.After(e) {
		return DateRange{}, ErrInvalidRange
	}
	if s.Equal(e) {
		return DateRange{}, ErrZeroDuration
	}
	return DateRange{Start: s, End: e}, nil
}

// ParseRange parses two YYYY-MM-DD bounds into a validated range.
func ParseRange(start, end string) (DateRange, error) {
	s, err := time.ParseInLocation(DayFormat, start, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(DayFormat, end, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	return NewDateRange(s, e)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days returns the exclusive day count: [d, d+2) spans 2 billable days.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start) / (24 * time.Hour))
}

// Overlaps reports whether the two ranges share at least one day.
// Touching bounds do not overlap, which allows back-to-back same-day
// turnover of a vehicle.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Shift moves both bounds by n days.
func (r DateRange) Shift(n int) DateRange {
	return DateRange{Start: r.Start.AddDate(0, 0, n), End: r.End.AddDate(0, 0, n)}
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(DayFormat), r.End.Format(DayFormat))
}
