package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

func sessionFixture() Session {
	return Session{
		WorkspaceID:    "ws-1",
		PrimaryOwnerID: "u1",
		OwnedScopes:    []string{"domain-1", "domain-2"},
		Participants: []Participant{
			{UserID: "u1", UserName: "Ada", AccessLevel: AccessEdit},
			{UserID: "u2", UserName: "Grace", AccessLevel: AccessEdit, SelectedElements: []string{"tbl-7"}},
			{UserID: "u3", UserName: "Edsger", AccessLevel: AccessRead},
		},
	}
}

func TestPresenceUpdateForUnknownUserIsNoOp(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	tracker.UpdateParticipantPresence("ghost", &protocol.CursorPosition{X: 1, Y: 1}, nil)

	_, ok := tracker.Participant("ghost")
	assert.False(t, ok)
	assert.Len(t, tracker.Participants(), 3)
}

func TestPresenceUpdateTouchesOnlyProvidedFields(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	tracker.UpdateParticipantPresence("u2", &protocol.CursorPosition{X: 10, Y: 20}, nil)

	p, ok := tracker.Participant("u2")
	require.True(t, ok)
	require.NotNil(t, p.CursorPosition)
	assert.Equal(t, 10.0, p.CursorPosition.X)
	assert.Equal(t, 20.0, p.CursorPosition.Y)
	assert.Equal(t, []string{"tbl-7"}, p.SelectedElements)
}

func TestLastSeenIsMonotonic(t *testing.T) {
	clk := clock.NewFake()
	tracker := NewPresenceTracker(clk)
	tracker.SetSession(sessionFixture())

	clk.Advance(5 * time.Second)
	tracker.UpdateParticipantPresence("u2", nil, []string{"tbl-1"})
	p, _ := tracker.Participant("u2")
	first := p.LastSeen

	clk.Advance(3 * time.Second)
	tracker.UpdateParticipantPresence("u2", nil, []string{"tbl-2"})
	p, _ = tracker.Participant("u2")
	assert.True(t, p.LastSeen.After(first))
}

func TestAddRemoveParticipant(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	tracker.AddParticipant(Participant{UserID: "u4", AccessLevel: AccessRead})
	assert.Len(t, tracker.Participants(), 4)

	tracker.RemoveParticipant("u4")
	_, ok := tracker.Participant("u4")
	assert.False(t, ok)
}

func TestUpdateParticipantPartial(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	level := AccessRead
	tracker.UpdateParticipant("u2", ParticipantUpdate{AccessLevel: &level})

	p, _ := tracker.Participant("u2")
	assert.Equal(t, AccessRead, p.AccessLevel)
	assert.Equal(t, "Grace", p.UserName)
}

func TestIsPrimaryOwnerScoped(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	assert.True(t, tracker.IsPrimaryOwner("u1", "domain-1"))
	assert.False(t, tracker.IsPrimaryOwner("u1", "domain-9"))
	assert.False(t, tracker.IsPrimaryOwner("u2", "domain-1"))
	assert.False(t, tracker.IsPrimaryOwner("", "domain-1"))
}

func TestHasEditAccess(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	// Primary owner edits inside their exclusive scopes.
	assert.True(t, tracker.HasEditAccess("u1", "domain-1"))

	// General edit access covers scopes not exclusively owned.
	assert.True(t, tracker.HasEditAccess("u2", "domain-9"))

	// But not scopes the primary owner holds exclusively.
	assert.False(t, tracker.HasEditAccess("u2", "domain-1"))

	// Read access never edits.
	assert.False(t, tracker.HasEditAccess("u3", "domain-9"))

	// Unknown users have no access.
	assert.False(t, tracker.HasEditAccess("ghost", "domain-9"))
}

func TestSetSessionReplacesParticipants(t *testing.T) {
	tracker := NewPresenceTracker(clock.NewFake())
	tracker.SetSession(sessionFixture())

	tracker.SetSession(Session{
		WorkspaceID:    "ws-1",
		PrimaryOwnerID: "u5",
		Participants:   []Participant{{UserID: "u5", AccessLevel: AccessEdit}},
	})

	assert.Len(t, tracker.Participants(), 1)
	_, ok := tracker.Participant("u2")
	assert.False(t, ok)
}
