package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

func newTestService(t *testing.T) (*fakeSender, *PresenceTracker, *ConflictLog, *[]DomainUpdate) {
	t.Helper()
	clk := clock.NewFake()
	sender := &fakeSender{}
	router := NewRouter("ws-1", sender, clk, log.Nop())
	presence := NewPresenceTracker(clk)
	presence.SetSession(sessionFixture())
	conflicts := NewConflictLog(clk)

	var updates []DomainUpdate
	NewService(router, presence, conflicts, func(u DomainUpdate) {
		updates = append(updates, u)
	}, log.Nop())
	return sender, presence, conflicts, &updates
}

func TestServiceForwardsDomainUpdates(t *testing.T) {
	sender, _, _, updates := newTestService(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sender.deliver(&protocol.Message{
		Type:        protocol.TypeTableUpdated,
		WorkspaceID: "ws-1",
		TableID:     "tbl-1",
		Data:        []byte(`{"name":"orders"}`),
		UserID:      "u2",
		Timestamp:   ts,
	})
	sender.deliver(&protocol.Message{
		Type:           protocol.TypeRelationshipUpdated,
		WorkspaceID:    "ws-1",
		RelationshipID: "rel-1",
		UserID:         "u3",
	})

	require.Len(t, *updates, 2)
	assert.Equal(t, protocol.ElementTable, (*updates)[0].ElementType)
	assert.Equal(t, "tbl-1", (*updates)[0].ElementID)
	assert.Equal(t, "u2", (*updates)[0].UserID)
	assert.Equal(t, ts, (*updates)[0].Timestamp)
	assert.Equal(t, protocol.ElementRelationship, (*updates)[1].ElementType)
	assert.Equal(t, "rel-1", (*updates)[1].ElementID)
}

func TestServiceAppliesPresenceUpdates(t *testing.T) {
	sender, presence, _, _ := newTestService(t)

	sender.deliver(&protocol.Message{
		Type:           protocol.TypePresenceUpdate,
		WorkspaceID:    "ws-1",
		UserID:         "u2",
		CursorPosition: &protocol.CursorPosition{X: 10, Y: 20},
	})

	p, ok := presence.Participant("u2")
	require.True(t, ok)
	require.NotNil(t, p.CursorPosition)
	assert.Equal(t, 10.0, p.CursorPosition.X)
	assert.Equal(t, []string{"tbl-7"}, p.SelectedElements)
}

func TestServiceRecordsConflictWarnings(t *testing.T) {
	sender, _, conflicts, _ := newTestService(t)

	sender.deliver(&protocol.Message{
		Type:        protocol.TypeConflictWarning,
		WorkspaceID: "ws-1",
		ElementType: protocol.ElementTable,
		ElementID:   "tbl-9",
		Text:        "table was deleted by another user",
	})

	entries := conflicts.Conflicts()
	require.Len(t, entries, 1)
	assert.Equal(t, protocol.ElementTable, entries[0].ElementType)
	assert.Equal(t, "tbl-9", entries[0].ElementID)
	assert.Equal(t, "table was deleted by another user", entries[0].Message)
}

func TestServiceIgnoresUnknownTypes(t *testing.T) {
	sender, _, conflicts, updates := newTestService(t)

	sender.deliver(&protocol.Message{Type: "tea_break", WorkspaceID: "ws-1"})

	assert.Empty(t, *updates)
	assert.Equal(t, 0, conflicts.Len())
}
