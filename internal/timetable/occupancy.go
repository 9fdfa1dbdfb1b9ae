package timetable

import "strings"

type slotOccupancy struct {
	teachers map[string]struct{}
	rooms    map[string]struct{}
	groups   map[string]struct{}
}

func newSlotOccupancy() *slotOccupancy {
	return &slotOccupancy{
		teachers: make(map[string]struct{}),
		rooms:    make(map[string]struct{}),
		groups:   make(map[string]struct{}),
	}
}

// OccupancyIndex records which teachers, rooms and groups are already
// committed to each slot within a single resolution run. The index is
// append-only: commitments are never retracted.
type OccupancyIndex struct {
	slots map[string]*slotOccupancy
}

// NewOccupancyIndex builds an empty index scoped to one resolution run.
func NewOccupancyIndex() *OccupancyIndex {
	return &OccupancyIndex{slots: make(map[string]*slotOccupancy)}
}

// IsAvailable reports whether none of the non-empty resource identities are
// already committed to the slot. A never-before-seen slot is vacuously
// available.
func (x *OccupancyIndex) IsAvailable(slot, teacher, room, group string) bool {
	occ, ok := x.slots[slot]
	if !ok {
		return true
	}
	if holds(occ.teachers, teacher) || holds(occ.rooms, room) || holds(occ.groups, group) {
		return false
	}
	return true
}

// Commit idempotently adds each non-empty resource identity to the slot's
// sets, creating the slot entry lazily.
func (x *OccupancyIndex) Commit(slot, teacher, room, group string) {
	occ, ok := x.slots[slot]
	if !ok {
		occ = newSlotOccupancy()
		x.slots[slot] = occ
	}
	reserve(occ.teachers, teacher)
	reserve(occ.rooms, room)
	reserve(occ.groups, group)
}

func holds(set map[string]struct{}, identity string) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false
	}
	_, ok := set[identity]
	return ok
}

func reserve(set map[string]struct{}, identity string) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return
	}
	set[identity] = struct{}{}
}
