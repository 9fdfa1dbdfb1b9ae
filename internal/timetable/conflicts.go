package timetable

import "strings"

// ConflictKind names the resource dimension a conflict occurred on.
type ConflictKind string

const (
	ConflictTeacher ConflictKind = "teacher"
	ConflictRoom    ConflictKind = "room"
	ConflictGroup   ConflictKind = "group"
)

// Conflict is an unavoidable double-booking of one resource identity in one
// slot, carrying every colliding assignment.
type Conflict struct {
	Kind        ConflictKind `json:"kind"`
	Slot        string       `json:"slot"`
	Resource    string       `json:"resource"`
	Assignments []Assignment `json:"assignments"`
}

// DetectConflicts re-scans final assignments grouped by assigned slot and
// reports every resource identity held by two or more of them. A single slot
// may yield several conflicts across kinds and identities. Relocation already
// prevented every avoidable collision, so this only surfaces the residue.
func DetectConflicts(assignments []Assignment) []Conflict {
	bySlot := make(map[string][]Assignment)
	slotOrder := make([]string, 0)
	for _, a := range assignments {
		if _, seen := bySlot[a.AssignedSlot]; !seen {
			slotOrder = append(slotOrder, a.AssignedSlot)
		}
		bySlot[a.AssignedSlot] = append(bySlot[a.AssignedSlot], a)
	}

	var conflicts []Conflict
	for _, slot := range slotOrder {
		group := bySlot[slot]
		if len(group) < 2 {
			continue
		}
		conflicts = append(conflicts, collisions(slot, group, ConflictTeacher, func(a Assignment) string { return a.Teacher })...)
		conflicts = append(conflicts, collisions(slot, group, ConflictRoom, func(a Assignment) string { return a.Room })...)
		conflicts = append(conflicts, collisions(slot, group, ConflictGroup, func(a Assignment) string { return a.Group })...)
	}
	return conflicts
}

func collisions(slot string, group []Assignment, kind ConflictKind, identity func(Assignment) string) []Conflict {
	byIdentity := make(map[string][]Assignment)
	order := make([]string, 0)
	for _, a := range group {
		id := strings.TrimSpace(identity(a))
		if id == "" {
			continue
		}
		if _, seen := byIdentity[id]; !seen {
			order = append(order, id)
		}
		byIdentity[id] = append(byIdentity[id], a)
	}

	var conflicts []Conflict
	for _, id := range order {
		colliding := byIdentity[id]
		if len(colliding) < 2 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Kind:        kind,
			Slot:        slot,
			Resource:    id,
			Assignments: colliding,
		})
	}
	return conflicts
}
