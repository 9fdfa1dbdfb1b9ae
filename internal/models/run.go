package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ResolutionRun is the persisted summary of one engine invocation.
type ResolutionRun struct {
	ID             string         `db:"id" json:"id"`
	Label          string         `db:"label" json:"label,omitempty"`
	RowCount       int            `db:"row_count" json:"rowCount"`
	AssignedCount  int            `db:"assigned_count" json:"assignedCount"`
	DroppedCount   int            `db:"dropped_count" json:"droppedCount"`
	RelocatedCount int            `db:"relocated_count" json:"relocatedCount"`
	ExhaustedCount int            `db:"exhausted_count" json:"exhaustedCount"`
	ConflictCount  int            `db:"conflict_count" json:"conflictCount"`
	Meta           types.JSONText `db:"meta" json:"meta,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// RunAssignment is one resolved row stored with its input position so the
// original processing order can always be reconstructed.
type RunAssignment struct {
	ID           string `db:"id" json:"-"`
	RunID        string `db:"run_id" json:"-"`
	Position     int    `db:"position" json:"position"`
	Day          string `db:"day" json:"day"`
	Period       string `db:"period" json:"period"`
	Subject      string `db:"subject" json:"subject,omitempty"`
	Teacher      string `db:"teacher" json:"teacher,omitempty"`
	Room         string `db:"room" json:"room,omitempty"`
	GroupName    string `db:"group_name" json:"group,omitempty"`
	SourceFile   string `db:"source_file" json:"sourceFile,omitempty"`
	AssignedSlot string `db:"assigned_slot" json:"assignedSlot"`
}

// RunConflict stores one unavoidable double-booking. Positions references the
// colliding assignments by their input position, encoded as a JSON array.
type RunConflict struct {
	ID        string         `db:"id" json:"-"`
	RunID     string         `db:"run_id" json:"-"`
	Kind      string         `db:"kind" json:"kind"`
	Slot      string         `db:"slot" json:"slot"`
	Resource  string         `db:"resource" json:"resource"`
	Positions types.JSONText `db:"positions" json:"positions"`
}
