// Package daterange turns calendar days and hours into half-open instant
// intervals in a given location.
package daterange

import (
	"strconv"
	"strings"
	"time"

	"unilib/internal/apperr"
)

const DayLayout = "2006-01-02"

// Range is the half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Day returns [d 00:00, d+1 00:00) in loc for a YYYY-MM-DD value.
func Day(value string, loc *time.Location) (Range, error) {
	d, err := time.ParseInLocation(DayLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return Range{}, apperr.Invalid("invalid date %q, expected YYYY-MM-DD", value)
	}
	return DayOf(d, loc), nil
}

// DayOf returns the calendar day containing t in loc.
func DayOf(t time.Time, loc *time.Location) Range {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return Range{Start: start, End: start.AddDate(0, 0, 1)}
}

// Hour narrows a day range to [h:00, h+1:00) wall-clock time.
func (r Range) Hour(hour int) (Range, error) {
	if hour < 0 || hour > 23 {
		return Range{}, apperr.Invalid("hour %d out of range 0-23", hour)
	}
	loc := r.Start.Location()
	y, m, d := r.Start.Date()
	start := time.Date(y, m, d, hour, 0, 0, 0, loc)
	end := time.Date(y, m, d, hour+1, 0, 0, 0, loc)
	return Range{Start: start, End: end}, nil
}

// ParseHour parses a 0-23 hour. Values like "09" and "9h" are accepted.
func ParseHour(value string) (int, error) {
	v := strings.TrimSuffix(strings.TrimSpace(value), "h")
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[:i]
	}
	h, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid("invalid hour %q", value)
	}
	if h < 0 || h > 23 {
		return 0, apperr.Invalid("hour %d out of range 0-23", h)
	}
	return h, nil
}

// ParseDeadline accepts RFC 3339 timestamps or YYYY-MM-DD days. A bare day
// is read as the last second of that day in loc, so a loan due "2024-01-10"
// is still on time during all of the 10th; wholeDay reports that case.
func ParseDeadline(value string, loc *time.Location) (due time.Time, wholeDay bool, err error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	r, err := Day(value, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return r.End.Add(-time.Second), true, nil
}

// Expired reports whether a deadline is already behind now. A whole-day
// deadline stays open until that day ends in loc.
func Expired(due time.Time, wholeDay bool, now time.Time, loc *time.Location) bool {
	if wholeDay {
		return due.Before(DayOf(now, loc).Start)
	}
	return due.Before(now)
}

// ParseInstant accepts RFC 3339 timestamps or YYYY-MM-DD days. A bare day
// resolves to now when it is today in loc and to its first instant
// otherwise.
func ParseInstant(value string, now time.Time, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	r, err := Day(value, loc)
	if err != nil {
		return time.Time{}, err
	}
	if r.Contains(now) {
		return now, nil
	}
	return r.Start, nil
}
