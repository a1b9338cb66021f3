package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"unilib/internal/apperr"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestDay(t *testing.T) {
	loc := mustLoad(t, "Africa/Douala")

	r, err := Day("2024-01-15", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, loc), r.Start)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, loc), r.End)

	assert.True(t, r.Contains(r.Start))
	assert.False(t, r.Contains(r.End))
	assert.True(t, r.Contains(time.Date(2024, 1, 15, 23, 59, 59, 0, loc)))

	_, err = Day("15/01/2024", loc)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestDayAcrossDST(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")

	r, err := Day("2024-03-31", loc)
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, r.End.Sub(r.Start))

	h, err := r.Hour(3)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Start.Hour())
}

func TestHour(t *testing.T) {
	r, err := Day("2024-01-15", time.UTC)
	require.NoError(t, err)

	h, err := r.Hour(9)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), h.Start)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), h.End)

	last, err := r.Hour(23)
	require.NoError(t, err)
	assert.Equal(t, r.End, last.End)

	_, err = r.Hour(24)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
	_, err = r.Hour(-1)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestParseHour(t *testing.T) {
	for in, want := range map[string]int{"9": 9, "09": 9, "9h": 9, "14:00": 14, "0": 0, "23": 23} {
		got, err := ParseHour(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"24", "-1", "noon", ""} {
		_, err := ParseHour(in)
		assert.True(t, apperr.Is(err, apperr.KindInvalid), in)
	}
}

func TestParseDeadline(t *testing.T) {
	due, wholeDay, err := ParseDeadline("2024-01-10", time.UTC)
	require.NoError(t, err)
	assert.True(t, wholeDay)
	assert.Equal(t, time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC), due)

	due, wholeDay, err = ParseDeadline("2024-01-10T08:00:00Z", time.UTC)
	require.NoError(t, err)
	assert.False(t, wholeDay)
	assert.Equal(t, 8, due.Hour())

	_, _, err = ParseDeadline("tomorrow", time.UTC)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestExpired(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		value string
		want  bool
	}{
		{"2024-01-14", true},
		{"2024-01-15", false},
		{"2024-01-16", false},
		{"2024-01-15T09:00:00Z", true},
		{"2024-01-15T10:00:00Z", false},
		{"2024-01-15T18:00:00Z", false},
	}
	for _, tc := range cases {
		due, wholeDay, err := ParseDeadline(tc.value, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, tc.want, Expired(due, wholeDay, now, time.UTC), tc.value)
	}
}

func TestParseInstant(t *testing.T) {
	now := time.Date(2024, 1, 12, 15, 30, 0, 0, time.UTC)

	got, err := ParseInstant("2024-01-12", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = ParseInstant("2024-01-11", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), got)
}

func TestHoursPartitionTheDay(t *testing.T) {
	loc := mustLoad(t, "Africa/Douala")
	rapid.Check(t, func(t *rapid.T) {
		offset := rapid.Int64Range(0, 10*365*24*3600).Draw(t, "offset")
		instant := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Second)

		day := DayOf(instant, loc)
		if !day.Contains(instant) {
			t.Fatalf("day %v does not contain %v", day, instant)
		}

		matches := 0
		for h := 0; h < 24; h++ {
			hr, err := day.Hour(h)
			if err != nil {
				t.Fatal(err)
			}
			if hr.Contains(instant) {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("%v falls in %d hour buckets", instant, matches)
		}
	})
}
