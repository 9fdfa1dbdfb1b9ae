package timetable

import (
	"strconv"
	"strings"
)

var dayAliases = map[string]string{
	"mon": "Mon", "monday": "Mon",
	"tue": "Tue", "tuesday": "Tue",
	"wed": "Wed", "wednesday": "Wed",
	"thu": "Thu", "thursday": "Thu",
	"fri": "Fri", "friday": "Fri",
}

// NormalizeDay maps free-form day text onto the canonical vocabulary.
// Unrecognized input is returned unchanged; callers must treat any
// non-canonical result as invalid for slot purposes.
func NormalizeDay(raw string) string {
	if canonical, ok := dayAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return canonical
	}
	return raw
}

// NormalizePeriod maps free-form period text onto the canonical vocabulary.
// It strips a leading "period" token, then takes the first run of digits;
// a value of 1..6 yields "P<n>". Input that already equals a canonical
// period passes through; anything else is returned unchanged.
func NormalizePeriod(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if lower := strings.ToLower(trimmed); strings.HasPrefix(lower, "period") {
		trimmed = "P" + strings.TrimSpace(trimmed[len("period"):])
	}
	if digits := firstDigitRun(trimmed); digits != "" {
		if n, err := strconv.Atoi(digits); err == nil && n >= 1 && n <= len(Periods) {
			return "P" + strconv.Itoa(n)
		}
	}
	if periodIndex(trimmed) >= 0 {
		return trimmed
	}
	return raw
}

// SlotFromRow normalizes the row's day and period independently and returns
// the canonical slot key, or the empty string when either half falls outside
// the grid vocabulary. This is the validity gate for resolution.
func SlotFromRow(row Row) string {
	day := NormalizeDay(row.Day)
	period := NormalizePeriod(row.Period)
	if dayIndex(day) < 0 || periodIndex(period) < 0 {
		return ""
	}
	return SlotKey(day, period)
}

func firstDigitRun(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}
