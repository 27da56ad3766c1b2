// Package calendar converts stored UTC instants to the restaurant's local
// business day. The local day uses a fixed UTC-3 offset with no daylight
// saving adjustment, and every date-bounded query goes through this package.
package calendar

import (
	"fmt"
	"time"
)

const (
	// OffsetHours is the fixed distance between local time and UTC.
	OffsetHours = -3

	dateLayout = "2006-01-02"
)

// Zone is the fixed-offset location used for every local-day computation.
var Zone = time.FixedZone("UTC-3", OffsetHours*60*60)

// LocalDate is a calendar date in the local zone, independent of any instant.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func NewLocalDate(year int, month time.Month, day int) LocalDate {
	// Normalise out-of-range values (e.g. day 32) through time.Date.
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func ParseLocalDate(value string) (LocalDate, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid local date %q: %w", value, err)
	}
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d LocalDate) AddDays(n int) LocalDate {
	return NewLocalDate(d.Year, d.Month, d.Day+n)
}

func (d LocalDate) Before(other LocalDate) bool {
	return d.midnight().Before(other.midnight())
}

func (d LocalDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d LocalDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *LocalDate) UnmarshalText(text []byte) error {
	parsed, err := ParseLocalDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d LocalDate) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, Zone)
}

// Range is an inclusive interval of instants, both expressed in UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ToLocalDay returns the local calendar date an instant falls on.
func ToLocalDay(t time.Time) LocalDate {
	local := t.In(Zone)
	return LocalDate{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// DayRange returns the first and last millisecond of a local date as UTC instants.
func DayRange(d LocalDate) Range {
	start := d.midnight()
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return Range{Start: start.UTC(), End: end.UTC()}
}

// Clock derives "today" from an injectable source of the current instant.
type Clock struct {
	now func() time.Time
}

func NewClock(now func() time.Time) Clock {
	if now == nil {
		now = time.Now
	}
	return Clock{now: now}
}

// System reads the process wall clock.
func System() Clock {
	return NewClock(time.Now)
}

func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

func (c Clock) Today() LocalDate {
	return ToLocalDay(c.Now())
}

func (c Clock) Yesterday() LocalDate {
	return c.Today().AddDays(-1)
}
