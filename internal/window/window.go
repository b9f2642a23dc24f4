package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConfigError reports an invalid lookback window.
type ConfigError struct {
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid lookback months %q: %s", e.Value, e.Reason)
}

// ParseMonths coerces a user-supplied lookback value into a positive month count.
func ParseMonths(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, &ConfigError{Value: raw, Reason: "value is required"}
	}

	months, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, &ConfigError{Value: raw, Reason: "must be an integer"}
	}
	if months <= 0 {
		return 0, &ConfigError{Value: raw, Reason: "must be > 0"}
	}
	return months, nil
}

// Resolve returns the cutoff instant that lies the given number of calendar months before now.
// Time of day and location are preserved. When the target month has fewer days than now's day,
// the day is clamped to the last day of the target month.
func Resolve(months int, now time.Time) (time.Time, error) {
	if months <= 0 {
		return time.Time{}, &ConfigError{Value: strconv.Itoa(months), Reason: "must be > 0"}
	}

	year, month, day := now.Date()
	hour, minute, second := now.Clock()

	total := int(month) - 1 - months
	targetYear := year + floorDiv(total, 12)
	targetMonth := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := daysIn(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, minute, second, now.Nanosecond(), now.Location()), nil
}

// FormatCutoff renders a cutoff the way the commits API expects its since parameter.
func FormatCutoff(cutoff time.Time) string {
	return cutoff.Format(time.RFC3339)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
