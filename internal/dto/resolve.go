package dto

import (
	"time"

	"github.com/slotwise/timetable-merge-api/internal/timetable"
)

// RowPayload mirrors timetable.Row on the wire. All fields are optional
// strings; the engine's validity gate decides what is usable.
type RowPayload struct {
	Day        string `json:"day"`
	Period     string `json:"period"`
	Subject    string `json:"subject"`
	Teacher    string `json:"teacher"`
	Room       string `json:"room"`
	Group      string `json:"group"`
	SourceFile string `json:"sourceFile"`
}

// ResolveRequest submits collected rows for consolidation.
type ResolveRequest struct {
	Label string       `json:"label" validate:"omitempty,max=120"`
	Rows  []RowPayload `json:"rows" validate:"required,min=1,max=5000"`
}

// ResolveResponse is the full outcome of a resolution run.
type ResolveResponse struct {
	RunID           string                            `json:"runId"`
	Label           string                            `json:"label,omitempty"`
	Assignments     []timetable.Assignment            `json:"assignments"`
	Conflicts       []timetable.Conflict              `json:"conflicts"`
	GroupedBySource map[string][]timetable.Assignment `json:"groupedBySource"`
	Stats           timetable.Stats                   `json:"stats"`
}

// RunListQuery filters the run listing.
type RunListQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

// RunSummary is one entry of the run listing.
type RunSummary struct {
	RunID          string    `json:"runId"`
	Label          string    `json:"label,omitempty"`
	RowCount       int       `json:"rowCount"`
	AssignedCount  int       `json:"assignedCount"`
	DroppedCount   int       `json:"droppedCount"`
	RelocatedCount int       `json:"relocatedCount"`
	ExhaustedCount int       `json:"exhaustedCount"`
	ConflictCount  int       `json:"conflictCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConflictRecord is a persisted conflict of a run. Positions index into the
// run's assignment list in input order.
type ConflictRecord struct {
	Kind      string `json:"kind"`
	Slot      string `json:"slot"`
	Resource  string `json:"resource"`
	Positions []int  `json:"positions"`
}

// EngineRows converts wire rows into engine rows preserving input order.
func (r ResolveRequest) EngineRows() []timetable.Row {
	rows := make([]timetable.Row, 0, len(r.Rows))
	for _, p := range r.Rows {
		rows = append(rows, timetable.Row{
			Day:        p.Day,
			Period:     p.Period,
			Subject:    p.Subject,
			Teacher:    p.Teacher,
			Room:       p.Room,
			Group:      p.Group,
			SourceFile: p.SourceFile,
		})
	}
	return rows
}
