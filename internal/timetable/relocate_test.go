package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closedIndex struct {
	visited []string
}

func (c *closedIndex) IsAvailable(slot, teacher, room, group string) bool {
	c.visited = append(c.visited, slot)
	return false
}

func TestRelocationOrderCoversGridOnce(t *testing.T) {
	order := RelocationOrder("Mon-P1")
	require.Len(t, order, TotalSlots-1)
	assert.Equal(t, "Mon-P2", order[0])

	seen := make(map[string]struct{}, len(order))
	for _, slot := range order {
		_, dup := seen[slot]
		assert.False(t, dup, "slot %s visited twice", slot)
		seen[slot] = struct{}{}
	}
	_, originVisited := seen["Mon-P1"]
	assert.False(t, originVisited)
}

func TestRelocationOrderFourPhases(t *testing.T) {
	order := RelocationOrder("Wed-P3")
	require.Len(t, order, TotalSlots-1)

	// Phase 1: later periods of Wednesday.
	assert.Equal(t, []string{"Wed-P4", "Wed-P5", "Wed-P6"}, order[:3])
	// Phase 2 starts with Thursday mornings.
	assert.Equal(t, "Thu-P1", order[3])
	assert.Equal(t, "Fri-P6", order[14])
	// Phase 3: earlier Wednesday periods, descending.
	assert.Equal(t, []string{"Wed-P2", "Wed-P1"}, order[15:17])
	// Phase 4: earlier days in day order, periods ascending.
	assert.Equal(t, "Mon-P1", order[17])
	assert.Equal(t, "Tue-P6", order[len(order)-1])
}

func TestRelocationOrderInvalidOrigin(t *testing.T) {
	assert.Nil(t, RelocationOrder("Sat-P1"))
	assert.Nil(t, RelocationOrder("Mon-P9"))
	assert.Nil(t, RelocationOrder("garbage"))
}

func TestRelocateExhaustsSearchSpace(t *testing.T) {
	index := &closedIndex{}
	slot, ok := Relocate(index, "Mon-P1", "T", "", "")
	assert.False(t, ok)
	assert.Empty(t, slot)
	assert.Len(t, index.visited, TotalSlots-1)
}

func TestRelocateReturnsFirstFreeSlot(t *testing.T) {
	index := NewOccupancyIndex()
	index.Commit("Mon-P2", "Alice", "", "")
	index.Commit("Mon-P3", "Alice", "", "")

	slot, ok := Relocate(index, "Mon-P1", "Alice", "", "")
	require.True(t, ok)
	assert.Equal(t, "Mon-P4", slot)
}
