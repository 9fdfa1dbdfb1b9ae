package timetable

import "strings"

// Days is the canonical ordered day vocabulary of the weekly grid.
var Days = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// Periods is the canonical ordered period vocabulary.
var Periods = [...]string{"P1", "P2", "P3", "P4", "P5", "P6"}

// TotalSlots is the number of addressable cells in the weekly grid.
const TotalSlots = len(Days) * len(Periods)

// SlotKey builds the canonical textual key for a (day, period) cell.
func SlotKey(day, period string) string {
	return day + "-" + period
}

// ParseSlotKey splits a slot key on the first dash. It performs no
// vocabulary validation; use dayIndex/periodIndex for that.
func ParseSlotKey(key string) (day, period string, ok bool) {
	i := strings.Index(key, "-")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func dayIndex(day string) int {
	for i, d := range Days {
		if d == day {
			return i
		}
	}
	return -1
}

func periodIndex(period string) int {
	for i, p := range Periods {
		if p == period {
			return i
		}
	}
	return -1
}
