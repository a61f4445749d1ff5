package timeparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryTime_RFC3339(t *testing.T) {
	result, err := ParseQueryTime("2025-12-29T10:30:45Z")
	require.NoError(t, err)

	assert.True(t, result.Equal(time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)))
}

func TestParseQueryTime_RFC3339WithOffset(t *testing.T) {
	result, err := ParseQueryTime("2025-12-29T18:30:45+08:00")
	require.NoError(t, err)

	assert.True(t, result.Equal(time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)))
	assert.Equal(t, time.UTC, result.Location())
}

func TestParseQueryTime_DayMonthYear(t *testing.T) {
	result, err := ParseQueryTime("29/12/2025 10:30:45")
	require.NoError(t, err)

	assert.True(t, result.Equal(time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)))
}

func TestParseQueryTime_DateOnly(t *testing.T) {
	result, err := ParseQueryTime("2025-12-29")
	require.NoError(t, err)

	assert.True(t, result.Equal(time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)))
}

func TestParseQueryTime_Invalid(t *testing.T) {
	_, err := ParseQueryTime("invalid-date-string")
	assert.Error(t, err)
}

func TestIsWithinTolerance(t *testing.T) {
	base := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		other time.Time
		want  bool
	}{
		{"within range", base.Add(3 * time.Minute), true},
		{"outside range", base.Add(6 * time.Minute), false},
		{"negative difference", base.Add(-3 * time.Minute), true},
		{"exact boundary", base.Add(5 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinTolerance(tt.other, base, 5*time.Minute))
		})
	}
}
