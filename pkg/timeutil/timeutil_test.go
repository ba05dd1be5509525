package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartAndEndOfDay(t *testing.T) {
	moment := time.Date(2026, 3, 10, 14, 25, 33, 123, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDay(moment))
	assert.Equal(t, time.Date(2026, 3, 10, 23, 59, 59, 999999999, time.UTC), EndOfDay(moment))
}

func TestStartOfDay_NormalizesZone(t *testing.T) {
	// 23:30 UTC-2 is already the next day in UTC.
	zone := time.FixedZone("UTC-2", -2*60*60)
	moment := time.Date(2026, 3, 10, 23, 30, 0, 0, zone)

	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), StartOfDay(moment))
}

func TestIsSameDay(t *testing.T) {
	morning := time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)
	night := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)

	assert.True(t, IsSameDay(morning, night))
	assert.False(t, IsSameDay(night, nextDay))
}

func TestIsConsecutiveDay(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 3, 12, 6, 0, 0, 0, time.UTC)

	assert.True(t, IsConsecutiveDay(day1, day2))
	assert.False(t, IsConsecutiveDay(day1, day3))
	assert.False(t, IsConsecutiveDay(day2, day1))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 13, 1, 0, 0, 0, time.UTC)

	// Calendar days, not 24h periods.
	assert.Equal(t, 3, DaysBetween(a, b))
	assert.Equal(t, 3, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "0s"},
		{45 * time.Second, "45s"},
		{3 * time.Minute, "3m"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{3 * time.Hour, "3h"},
		{5*24*time.Hour + 3*time.Hour, "5d 3h"},
		{7 * 24 * time.Hour, "7d"},
		{-90 * time.Second, "1m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d), "duration %s", tt.d)
	}
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "just now", FormatRelative(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", FormatRelative(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h ago", FormatRelative(now.Add(-2*time.Hour), now))
	assert.Equal(t, "in 1h", FormatRelative(now.Add(time.Hour), now))
}
