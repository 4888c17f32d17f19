package collab

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

// Conflict is an advisory notice that a concurrent edit or deletion
// invalidated a local assumption about an element. It never blocks local
// edits; it exists to be surfaced for acknowledgment.
type Conflict struct {
	ID          string
	ElementType protocol.ElementType
	ElementID   string
	Message     string
	Timestamp   time.Time
}

// ConflictDetails describes a conflict being recorded. A zero Timestamp
// is filled with the current time.
type ConflictDetails struct {
	ElementType protocol.ElementType
	ElementID   string
	Message     string
	Timestamp   time.Time
}

// ConflictLog accumulates conflict notices. Dismissal is local only.
type ConflictLog struct {
	clock clock.Clock

	mu        sync.RWMutex
	conflicts []Conflict
}

func NewConflictLog(clk clock.Clock) *ConflictLog {
	return &ConflictLog{clock: clk}
}

// Add appends a conflict under a fresh unique id. Entries are not
// deduplicated; two conflicts on the same element are both retained.
func (l *ConflictLog) Add(details ConflictDetails) Conflict {
	ts := details.Timestamp
	if ts.IsZero() {
		ts = l.clock.Now().UTC()
	}
	c := Conflict{
		ID:          uuid.NewString(),
		ElementType: details.ElementType,
		ElementID:   details.ElementID,
		Message:     details.Message,
		Timestamp:   ts,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.conflicts = append(l.conflicts, c)
	return c
}

// Remove dismisses one conflict by id, reporting whether it existed.
func (l *ConflictLog) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.conflicts {
		if c.ID == id {
			l.conflicts = append(l.conflicts[:i], l.conflicts[i+1:]...)
			return true
		}
	}
	return false
}

// Clear dismisses every conflict.
func (l *ConflictLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conflicts = nil
}

// Conflicts returns a snapshot in arrival order.
func (l *ConflictLog) Conflicts() []Conflict {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Conflict, len(l.conflicts))
	copy(out, l.conflicts)
	return out
}

func (l *ConflictLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conflicts)
}
