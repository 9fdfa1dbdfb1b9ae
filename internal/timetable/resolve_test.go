package timetable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveValidityGate(t *testing.T) {
	rows := []Row{
		{Day: "", Period: "Period 1", Teacher: "Alice"},
		{Day: "Monday", Period: "1"},
		{Day: "Monday", Period: "1", Teacher: "   "},
		{Day: "Monday", Period: "lunch", Teacher: "Alice"},
	}

	result := Resolve(rows, nil)
	assert.Empty(t, result.Assignments)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, 4, result.Stats.TotalRows)
	assert.Equal(t, 4, result.Stats.Dropped)
}

func TestResolveRelocatesSecondTeacherBooking(t *testing.T) {
	rows := []Row{
		{Day: "Mon", Period: "P1", Subject: "Math", Teacher: "Alice", Group: "G1", Room: "R1"},
		{Day: "Mon", Period: "P1", Subject: "Science", Teacher: "Alice", Group: "G2", Room: "R2"},
	}

	result := Resolve(rows, nil)
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "Mon-P1", result.Assignments[0].AssignedSlot)
	assert.Equal(t, "Mon-P2", result.Assignments[1].AssignedSlot)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, 1, result.Stats.Relocated)
}

func TestResolveSaturatesGridInSearchOrder(t *testing.T) {
	rows := make([]Row, 0, TotalSlots)
	for i := 0; i < TotalSlots; i++ {
		rows = append(rows, Row{Day: "Mon", Period: "P1", Teacher: "T"})
	}

	result := Resolve(rows, nil)
	require.Len(t, result.Assignments, TotalSlots)
	assert.Empty(t, result.Conflicts)

	expected := append([]string{"Mon-P1"}, RelocationOrder("Mon-P1")...)
	got := make([]string, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		got = append(got, a.AssignedSlot)
	}
	assert.Equal(t, expected, got)
}

func TestResolveExhaustionFallsBackToOriginalSlot(t *testing.T) {
	rows := make([]Row, 0, TotalSlots+1)
	for i := 0; i < TotalSlots+1; i++ {
		rows = append(rows, Row{Day: "Mon", Period: "P1", Teacher: "T"})
	}

	result := Resolve(rows, nil)
	require.Len(t, result.Assignments, TotalSlots+1)
	last := result.Assignments[TotalSlots]
	assert.Equal(t, "Mon-P1", last.AssignedSlot)
	assert.Equal(t, 1, result.Stats.Exhausted)

	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, ConflictTeacher, conflict.Kind)
	assert.Equal(t, "Mon-P1", conflict.Slot)
	assert.Equal(t, "T", conflict.Resource)
	require.Len(t, conflict.Assignments, 2)
	assert.Equal(t, result.Assignments[0], conflict.Assignments[0])
	assert.Equal(t, last, conflict.Assignments[1])
}

func TestResolveDeterministic(t *testing.T) {
	rows := make([]Row, 0, 60)
	for i := 0; i < 60; i++ {
		rows = append(rows, Row{
			Day:     Days[i%len(Days)],
			Period:  "P1",
			Teacher: fmt.Sprintf("T%d", i%7),
			Room:    fmt.Sprintf("R%d", i%5),
			Group:   fmt.Sprintf("G%d", i%11),
		})
	}

	first := Resolve(rows, nil)
	second := Resolve(rows, nil)
	require.Equal(t, len(first.Assignments), len(second.Assignments))
	for i := range first.Assignments {
		assert.Equal(t, first.Assignments[i].AssignedSlot, second.Assignments[i].AssignedSlot)
	}
}

func TestResolveNeverSilentlyDoubleBooks(t *testing.T) {
	// Saturate the grid for one teacher, then submit two more rows: every
	// pair sharing the teacher must either occupy distinct slots or be
	// surfaced as a teacher conflict.
	rows := make([]Row, 0, TotalSlots+2)
	for i := 0; i < TotalSlots+2; i++ {
		rows = append(rows, Row{Day: "Tue", Period: "P4", Teacher: "Drew"})
	}

	result := Resolve(rows, nil)
	slots := make(map[string]int)
	for _, a := range result.Assignments {
		slots[a.AssignedSlot]++
	}
	for slot, count := range slots {
		if count < 2 {
			continue
		}
		found := false
		for _, c := range result.Conflicts {
			if c.Kind == ConflictTeacher && c.Slot == slot && c.Resource == "Drew" {
				found = true
				assert.Len(t, c.Assignments, count)
			}
		}
		assert.True(t, found, "double-booked slot %s has no reported conflict", slot)
	}
}

func TestResolveGroupsBySource(t *testing.T) {
	rows := []Row{
		{Day: "Mon", Period: "P1", Teacher: "A", SourceFile: "north.xlsx"},
		{Day: "Mon", Period: "P2", Teacher: "B"},
		{Day: "Mon", Period: "P3", Teacher: "C", SourceFile: "north.xlsx"},
		{Day: "Mon", Period: "P4", Teacher: "D", SourceFile: "  "},
	}

	result := Resolve(rows, nil)
	require.Len(t, result.Assignments, 4)
	assert.Len(t, result.BySource["north.xlsx"], 2)
	assert.Len(t, result.BySource[UnknownSource], 2)
	assert.Equal(t, "Mon-P1", result.BySource["north.xlsx"][0].AssignedSlot)
	assert.Equal(t, "Mon-P3", result.BySource["north.xlsx"][1].AssignedSlot)
}

func TestResolveEmitsObserverEvents(t *testing.T) {
	var events []Event
	rows := make([]Row, 0, TotalSlots+2)
	rows = append(rows, Row{Day: "nope", Period: "P1", Teacher: "T"})
	for i := 0; i < TotalSlots+1; i++ {
		rows = append(rows, Row{Day: "Mon", Period: "P1", Teacher: "T"})
	}

	Resolve(rows, func(e Event) { events = append(events, e) })

	counts := make(map[EventType]int)
	for _, e := range events {
		counts[e.Type]++
	}
	assert.Equal(t, 1, counts[EventRowDropped])
	assert.Equal(t, TotalSlots-1, counts[EventRelocated])
	assert.Equal(t, 1, counts[EventRelocationExhausted])
}

func TestResolveCommitsExhaustedSlot(t *testing.T) {
	// Even an unresolved conflict commits its resources so later rows are
	// routed around the contested slot.
	rows := make([]Row, 0, TotalSlots+2)
	for i := 0; i < TotalSlots; i++ {
		rows = append(rows, Row{Day: "Mon", Period: "P1", Teacher: "T"})
	}
	// Teacher T now holds every slot; this row exhausts relocation, falls
	// back to Mon-P1 and commits room R9 there.
	rows = append(rows, Row{Day: "Mon", Period: "P1", Teacher: "T", Room: "R9"})
	rows = append(rows, Row{Day: "Mon", Period: "P1", Teacher: "B", Room: "R9"})

	result := Resolve(rows, nil)
	require.Len(t, result.Assignments, TotalSlots+2)
	exhausted := result.Assignments[TotalSlots]
	assert.Equal(t, "Mon-P1", exhausted.AssignedSlot)

	// The trailing row sees R9 committed at Mon-P1 and is routed onward.
	final := result.Assignments[TotalSlots+1]
	assert.Equal(t, "Mon-P2", final.AssignedSlot)
}
