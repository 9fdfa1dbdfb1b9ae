package timetable

import "strings"

// UnknownSource groups assignments whose row carried no source file.
const UnknownSource = "unknown"

// Row is one normalized timetable record handed over by the parsing
// collaborator. Rows are immutable once produced; only day and period are
// interpreted, every other field is carried through verbatim.
type Row struct {
	Day        string `json:"day"`
	Period     string `json:"period"`
	Subject    string `json:"subject,omitempty"`
	Teacher    string `json:"teacher,omitempty"`
	Room       string `json:"room,omitempty"`
	Group      string `json:"group,omitempty"`
	SourceFile string `json:"sourceFile,omitempty"`
}

// HasResource reports whether at least one resource identity survives
// trimming. Rows without any identity cannot conflict and are dropped.
func (r Row) HasResource() bool {
	return strings.TrimSpace(r.Teacher) != "" ||
		strings.TrimSpace(r.Room) != "" ||
		strings.TrimSpace(r.Group) != ""
}

// Assignment is a row plus the slot it finally occupies. AssignedSlot may
// differ from the slot the row described when relocation moved it, and may
// still collide when relocation exhausted the grid.
type Assignment struct {
	Row
	AssignedSlot string `json:"assignedSlot"`
}

// Stats counts the observable outcomes of one resolution run.
type Stats struct {
	TotalRows int `json:"totalRows"`
	Dropped   int `json:"dropped"`
	Relocated int `json:"relocated"`
	Exhausted int `json:"exhausted"`
}

// Result is the self-contained outcome of one resolution run.
type Result struct {
	Assignments []Assignment            `json:"assignments"`
	Conflicts   []Conflict              `json:"conflicts"`
	BySource    map[string][]Assignment `json:"groupedBySource"`
	Stats       Stats                   `json:"stats"`
}

// EventType classifies resolution events surfaced through the observer.
type EventType string

const (
	EventRowDropped          EventType = "row_dropped"
	EventRelocated           EventType = "relocated"
	EventRelocationExhausted EventType = "relocation_exhausted"
)

// Event is a structured notification emitted during resolution. The engine
// never logs; callers inject an Observer when they want visibility.
type Event struct {
	Type         EventType
	Row          Row
	OriginSlot   string
	AssignedSlot string
}

// Observer receives resolution events. A nil observer is valid.
type Observer func(Event)

// Resolve consumes rows in input order and produces the final assignment of
// every valid row, the per-source groupings and the unavoidable conflicts.
// Each call owns a fresh occupancy index; nothing persists between runs.
//
// Resolution is strictly forward-only: commitments are never retracted, and
// earlier rows are never revisited when a later relocation frees capacity.
func Resolve(rows []Row, observe Observer) Result {
	if observe == nil {
		observe = func(Event) {}
	}

	index := NewOccupancyIndex()
	result := Result{
		Assignments: make([]Assignment, 0, len(rows)),
		BySource:    make(map[string][]Assignment),
		Stats:       Stats{TotalRows: len(rows)},
	}

	for _, row := range rows {
		slot := SlotFromRow(row)
		if slot == "" || !row.HasResource() {
			result.Stats.Dropped++
			observe(Event{Type: EventRowDropped, Row: row, OriginSlot: slot})
			continue
		}

		assigned := slot
		if !index.IsAvailable(slot, row.Teacher, row.Room, row.Group) {
			if target, ok := Relocate(index, slot, row.Teacher, row.Room, row.Group); ok {
				assigned = target
				result.Stats.Relocated++
				observe(Event{Type: EventRelocated, Row: row, OriginSlot: slot, AssignedSlot: target})
			} else {
				// Grid exhausted: keep the original slot and let the
				// conflict reporter surface the double-booking.
				result.Stats.Exhausted++
				observe(Event{Type: EventRelocationExhausted, Row: row, OriginSlot: slot, AssignedSlot: slot})
			}
		}

		index.Commit(assigned, row.Teacher, row.Room, row.Group)

		assignment := Assignment{Row: row, AssignedSlot: assigned}
		result.Assignments = append(result.Assignments, assignment)

		source := strings.TrimSpace(row.SourceFile)
		if source == "" {
			source = UnknownSource
		}
		result.BySource[source] = append(result.BySource[source], assignment)
	}

	result.Conflicts = DetectConflicts(result.Assignments)
	return result
}
