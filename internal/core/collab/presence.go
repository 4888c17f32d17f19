package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

// AccessLevel is a participant's general access to the workspace.
type AccessLevel string

const (
	AccessRead AccessLevel = "read"
	AccessEdit AccessLevel = "edit"
)

// Participant is one user in a shared session. The current user's own
// record is locally authoritative; all others are remote-derived.
type Participant struct {
	UserID           string
	UserName         string
	AccessLevel      AccessLevel
	CursorPosition   *protocol.CursorPosition
	SelectedElements []string
	LastSeen         time.Time
}

// Session describes an established shared session: its participants, the
// designated primary owner, and the scopes that owner holds exclusively.
type Session struct {
	WorkspaceID    string
	PrimaryOwnerID string
	OwnedScopes    []string
	Participants   []Participant
}

// PresenceTracker derives who is in the session from presence messages
// and explicit membership events. Pure state plus queries, no I/O.
type PresenceTracker struct {
	clock clock.Clock

	mu             sync.RWMutex
	workspaceID    string
	primaryOwnerID string
	ownedScopes    map[string]struct{}
	participants   map[string]*Participant
}

func NewPresenceTracker(clk clock.Clock) *PresenceTracker {
	return &PresenceTracker{
		clock:        clk,
		ownedScopes:  make(map[string]struct{}),
		participants: make(map[string]*Participant),
	}
}

// SetSession replaces the full participant list, used on initial join and
// session re-establishment.
func (p *PresenceTracker) SetSession(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workspaceID = s.WorkspaceID
	p.primaryOwnerID = s.PrimaryOwnerID
	p.ownedScopes = make(map[string]struct{}, len(s.OwnedScopes))
	for _, scope := range s.OwnedScopes {
		p.ownedScopes[scope] = struct{}{}
	}
	p.participants = make(map[string]*Participant, len(s.Participants))
	now := p.clock.Now().UTC()
	for _, part := range s.Participants {
		cp := part
		if cp.LastSeen.IsZero() {
			cp.LastSeen = now
		}
		p.participants[cp.UserID] = &cp
	}
}

// Clear drops all session state, used on teardown.
func (p *PresenceTracker) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workspaceID = ""
	p.primaryOwnerID = ""
	p.ownedScopes = make(map[string]struct{})
	p.participants = make(map[string]*Participant)
}

func (p *PresenceTracker) AddParticipant(part Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if part.LastSeen.IsZero() {
		part.LastSeen = p.clock.Now().UTC()
	}
	p.participants[part.UserID] = &part
}

func (p *PresenceTracker) RemoveParticipant(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.participants, userID)
}

// ParticipantUpdate is a partial update; nil fields are left untouched.
type ParticipantUpdate struct {
	UserName         *string
	AccessLevel      *AccessLevel
	CursorPosition   *protocol.CursorPosition
	SelectedElements []string
}

// UpdateParticipant applies a partial update to an existing participant.
// Unknown user ids are ignored.
func (p *PresenceTracker) UpdateParticipant(userID string, update ParticipantUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	part, ok := p.participants[userID]
	if !ok {
		return
	}
	if update.UserName != nil {
		part.UserName = *update.UserName
	}
	if update.AccessLevel != nil {
		part.AccessLevel = *update.AccessLevel
	}
	if update.CursorPosition != nil {
		part.CursorPosition = update.CursorPosition
	}
	if update.SelectedElements != nil {
		part.SelectedElements = update.SelectedElements
	}
	p.touchLocked(part)
}

// UpdateParticipantPresence upserts only the presence fields of an
// existing participant. A participant must first exist via an explicit
// add; unknown user ids are no-ops.
func (p *PresenceTracker) UpdateParticipantPresence(userID string, cursor *protocol.CursorPosition, selectedElements []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	part, ok := p.participants[userID]
	if !ok {
		return
	}
	if cursor != nil {
		part.CursorPosition = cursor
	}
	if selectedElements != nil {
		part.SelectedElements = selectedElements
	}
	p.touchLocked(part)
}

// Participant returns a copy of the record for the given user.
func (p *PresenceTracker) Participant(userID string) (Participant, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	part, ok := p.participants[userID]
	if !ok {
		return Participant{}, false
	}
	return *part, true
}

// Participants returns a snapshot sorted by user id.
func (p *PresenceTracker) Participants() []Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Participant, 0, len(p.participants))
	for _, part := range p.participants {
		out = append(out, *part)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// IsPrimaryOwner reports whether the user is the session's designated
// primary owner and the scope is within that owner's exclusive set.
func (p *PresenceTracker) IsPrimaryOwner(userID, scope string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if userID == "" || userID != p.primaryOwnerID {
		return false
	}
	_, ok := p.ownedScopes[scope]
	return ok
}

// HasEditAccess reports whether the user may edit the scope: either as
// its primary owner, or through a general edit access level on any scope
// not exclusively owned by someone else.
func (p *PresenceTracker) HasEditAccess(userID, scope string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if userID == p.primaryOwnerID {
		if _, ok := p.ownedScopes[scope]; ok {
			return true
		}
	}
	part, ok := p.participants[userID]
	if !ok || part.AccessLevel != AccessEdit {
		return false
	}
	if _, owned := p.ownedScopes[scope]; owned && userID != p.primaryOwnerID {
		return false
	}
	return true
}

// touchLocked advances LastSeen, keeping it monotonically non-decreasing.
func (p *PresenceTracker) touchLocked(part *Participant) {
	now := p.clock.Now().UTC()
	if now.After(part.LastSeen) {
		part.LastSeen = now
	}
}
