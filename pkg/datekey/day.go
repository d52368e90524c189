// Package datekey converts calendar days into the canonical six-digit keys used
// for cache lookups and on-disk filenames, and back again.
//
// All day arithmetic is done on a fixed UTC calendar with no time-of-day
// component, so month and year boundaries and DST transitions in the viewer's
// timezone never shift a day.
package datekey

import (
	"fmt"
	"sort"
	"time"
)

// DateFmt is the human-readable layout accepted by Parse and produced by String.
const DateFmt = "2006-01-02"

// Day is a calendar day. The zero value is not a valid day; see IsZero.
// Day values are comparable with == and usable as map keys.
type Day struct {
	year  int
	month time.Month
	day   int
}

// New returns the day for the given year, month and day of month.
// Out-of-range values are normalized the way time.Date normalizes them,
// so New(2025, 1, 32) is 2025-02-01.
func New(year int, month time.Month, day int) Day {
	return fromUTC(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime returns the calendar day of t as observed in loc.
// A nil loc uses t's own location.
func FromTime(t time.Time, loc *time.Location) Day {
	if loc != nil {
		t = t.In(loc)
	}
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

// Today returns the current day at now as observed in loc.
func Today(now time.Time, loc *time.Location) Day {
	return FromTime(now, loc)
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (Day, error) {
	t, err := time.Parse(DateFmt, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return fromUTC(t), nil
}

func fromUTC(t time.Time) Day {
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

// Year returns the year of d.
func (d Day) Year() int { return d.year }

// Month returns the month of d.
func (d Day) Month() time.Month { return d.month }

// DayOfMonth returns the day of the month of d.
func (d Day) DayOfMonth() int { return d.day }

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool { return d == Day{} }

// Time returns midnight UTC at the start of d.
func (d Day) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the day n days after d (before d when n is negative).
func (d Day) AddDays(n int) Day {
	return fromUTC(d.Time().AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d Day) Compare(o Day) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

// Before reports whether d is strictly before o.
func (d Day) Before(o Day) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly after o.
func (d Day) After(o Day) bool { return d.Compare(o) > 0 }

// DaysUntil returns the number of days from d to o (negative when o is earlier).
func (d Day) DaysUntil(o Day) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// String formats d as YYYY-MM-DD.
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(DateFmt)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range returns every day from `from` to `to` inclusive, in chronological order.
// It returns nil when from is after to.
func Range(from, to Day) []Day {
	if from.After(to) {
		return nil
	}
	days := make([]Day, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Sort orders days chronologically in place.
func Sort(days []Day) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
