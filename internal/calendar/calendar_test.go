package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLocalDayEarlyUTCFallsOnPreviousDay(t *testing.T) {
	instant := time.Date(2024, time.March, 10, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, NewLocalDate(2024, time.March, 9), ToLocalDay(instant))

	afterBoundary := time.Date(2024, time.March, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, NewLocalDate(2024, time.March, 10), ToLocalDay(afterBoundary))
}

func TestDayRangeShiftsToUTC(t *testing.T) {
	r := DayRange(NewLocalDate(2024, time.March, 9))

	assert.Equal(t, time.Date(2024, time.March, 9, 3, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, time.March, 10, 2, 59, 59, 999_000_000, time.UTC), r.End)
	assert.Equal(t, time.UTC, r.Start.Location())
}

func TestDayRangeRoundTrip(t *testing.T) {
	day := NewLocalDate(2024, time.December, 31)
	r := DayRange(day)

	// Walk a 72h window around the day in 7-minute steps.
	cursor := r.Start.Add(-36 * time.Hour)
	for cursor.Before(r.End.Add(36 * time.Hour)) {
		inRange := r.Contains(cursor)
		mapsToDay := ToLocalDay(cursor) == day
		require.Equalf(t, mapsToDay, inRange, "instant %s", cursor)
		cursor = cursor.Add(7 * time.Minute)
	}

	assert.Equal(t, day, ToLocalDay(r.Start))
	assert.Equal(t, day, ToLocalDay(r.End))
	assert.NotEqual(t, day, ToLocalDay(r.Start.Add(-time.Millisecond)))
	assert.NotEqual(t, day, ToLocalDay(r.End.Add(time.Millisecond)))
}

func TestClockTodayAndYesterday(t *testing.T) {
	clock := NewClock(func() time.Time {
		return time.Date(2024, time.January, 1, 1, 15, 0, 0, time.UTC)
	})

	assert.Equal(t, NewLocalDate(2023, time.December, 31), clock.Today())
	assert.Equal(t, NewLocalDate(2023, time.December, 30), clock.Yesterday())
}

func TestLocalDateParseAndArithmetic(t *testing.T) {
	d, err := ParseLocalDate("2024-02-28")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, "2024-02-21", d.AddDays(-7).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))

	_, err = ParseLocalDate("28/02/2024")
	assert.Error(t, err)
}

func TestLocalDateTextEncoding(t *testing.T) {
	var d LocalDate
	require.NoError(t, d.UnmarshalText([]byte("2025-07-04")))
	assert.Equal(t, NewLocalDate(2025, time.July, 4), d)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2025-07-04", string(text))
}
