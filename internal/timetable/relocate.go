package timetable

// availabilityChecker is the slice of the occupancy index relocation needs.
type availabilityChecker interface {
	IsAvailable(slot, teacher, room, group string) bool
}

// RelocationOrder returns every alternative slot for the given origin in the
// fixed four-phase search order:
//
//  1. later periods of the same day, ascending
//  2. all periods of each later day, days then periods ascending
//  3. earlier periods of the same day, descending
//  4. all periods of each earlier day, days then periods ascending
//
// The sequence covers the remaining 29 slots exactly once. A non-canonical
// origin yields nil.
func RelocationOrder(origin string) []string {
	day, period, ok := ParseSlotKey(origin)
	if !ok {
		return nil
	}
	di := dayIndex(day)
	pi := periodIndex(period)
	if di < 0 || pi < 0 {
		return nil
	}

	order := make([]string, 0, TotalSlots-1)
	for p := pi + 1; p < len(Periods); p++ {
		order = append(order, SlotKey(Days[di], Periods[p]))
	}
	for d := di + 1; d < len(Days); d++ {
		for p := 0; p < len(Periods); p++ {
			order = append(order, SlotKey(Days[d], Periods[p]))
		}
	}
	for p := pi - 1; p >= 0; p-- {
		order = append(order, SlotKey(Days[di], Periods[p]))
	}
	for d := 0; d < di; d++ {
		for p := 0; p < len(Periods); p++ {
			order = append(order, SlotKey(Days[d], Periods[p]))
		}
	}
	return order
}

// Relocate walks the relocation order and returns the first slot whose
// occupancy admits all of the row's resource identities. The boolean is
// false when the entire grid is exhausted.
func Relocate(index availabilityChecker, origin, teacher, room, group string) (string, bool) {
	for _, candidate := range RelocationOrder(origin) {
		if index.IsAvailable(candidate, teacher, room, group) {
			return candidate, true
		}
	}
	return "", false
}
