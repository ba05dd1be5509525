package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_FieldForms(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"wildcard", "* * * * *"},
		{"step", "*/15 * * * *"},
		{"fixed", "0 3 * * *"},
		{"range", "0 9-17 * * *"},
		{"list", "0 0,12 * * *"},
		{"weekday", "30 8 * * 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestParseCronExpression_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"too few fields", "* * * *"},
		{"too many fields", "* * * * * *"},
		{"minute out of range", "60 * * * *"},
		{"hour out of range", "0 24 * * *"},
		{"garbage", "every day please"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestCronExpression_NextHourly(t *testing.T) {
	ce, err := ParseCronExpression(EveryHour)
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 14, 25, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextRollsOverMidnight(t *testing.T) {
	ce, err := ParseCronExpression(EveryDay3AM)
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextStep(t *testing.T) {
	ce, err := ParseCronExpression("*/15 * * * *")
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 14, 16, 30, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC), next)
}

func TestCronExpression_NextWeekday(t *testing.T) {
	// Monday 08:30.
	ce, err := ParseCronExpression("30 8 * * 1")
	require.NoError(t, err)

	// 2026-03-10 is a Tuesday, the next match is Monday the 16th.
	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 16, 8, 30, 0, 0, time.UTC), next)
}

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(15 * time.Minute)

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(15*time.Minute), s.Next(now))
	assert.Equal(t, "@every 15m0s", s.String())
}
