package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

func TestConflictAddThenRemoveLeavesLogEmpty(t *testing.T) {
	l := NewConflictLog(clock.NewFake())

	c := l.Add(ConflictDetails{
		ElementType: protocol.ElementTable,
		ElementID:   "tbl-1",
		Message:     "table was modified by another user",
	})
	require.NotEmpty(t, c.ID)
	require.Equal(t, 1, l.Len())

	assert.True(t, l.Remove(c.ID))
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Remove(c.ID))
}

func TestConflictsAreNotDeduplicated(t *testing.T) {
	l := NewConflictLog(clock.NewFake())

	details := ConflictDetails{ElementType: protocol.ElementTable, ElementID: "tbl-1", Message: "edited concurrently"}
	a := l.Add(details)
	b := l.Add(details)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, l.Len())
}

func TestClearConflictsAlwaysEmpties(t *testing.T) {
	l := NewConflictLog(clock.NewFake())
	for i := 0; i < 5; i++ {
		l.Add(ConflictDetails{ElementType: protocol.ElementRelationship, ElementID: "rel-1"})
	}

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Conflicts())

	// Clearing an empty log stays empty.
	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestConflictZeroTimestampFilled(t *testing.T) {
	clk := clock.NewFake()
	l := NewConflictLog(clk)

	c := l.Add(ConflictDetails{ElementType: protocol.ElementDataFlowDiagram, ElementID: "dfd-1"})
	assert.Equal(t, clk.Now(), c.Timestamp)
}
