package timeparser

import (
	"fmt"
	"time"
)

// ParseQueryTime parses a query-string timestamp. Inputs without a zone are read as UTC.
func ParseQueryTime(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,      // 2006-01-02T15:04:05.999999999Z07:00
		"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
		"2006-01-02",          // YYYY-MM-DD
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// IsWithinTolerance checks if two timestamps are at most tolerance apart
func IsWithinTolerance(a, b time.Time, tolerance time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
