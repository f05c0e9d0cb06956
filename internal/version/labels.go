package version

import (
	"fmt"
	"time"
)

// BuildLabel renders the canonical version label for a release quarter,
// e.g. "2026-Q1".
func BuildLabel(year, quarter int) (string, error) {
	if quarter < 1 || quarter > 4 {
		return "", fmt.Errorf("quarter must be 1-4, got %d", quarter)
	}
	if year < 1990 || year > 2100 {
		return "", fmt.Errorf("year out of range: %d", year)
	}
	return fmt.Sprintf("%d-Q%d", year, quarter), nil
}

// EffectiveDate returns the first day of the release quarter.
func EffectiveDate(year, quarter int) time.Time {
	month := time.Month((quarter-1)*3 + 1)
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}
