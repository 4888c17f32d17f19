package collab

import (
	"encoding/json"
	"time"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/protocol"
)

// DomainUpdate is a collaborator's mutation of a workspace element,
// forwarded to the local model store.
type DomainUpdate struct {
	ElementType protocol.ElementType
	ElementID   string
	Data        json.RawMessage
	UserID      string
	Timestamp   time.Time
}

// Service binds the router's inbound stream to the presence tracker, the
// conflict log, and the domain-update callback.
type Service struct {
	presence  *PresenceTracker
	conflicts *ConflictLog
	logger    log.Log

	onDomainUpdate func(DomainUpdate)
	sub            *Subscription
}

// NewService subscribes to the router. onDomainUpdate may be nil when the
// caller has no local model store attached yet.
func NewService(router *Router, presence *PresenceTracker, conflicts *ConflictLog, onDomainUpdate func(DomainUpdate), logger log.Log) *Service {
	s := &Service{
		presence:       presence,
		conflicts:      conflicts,
		logger:         logger.With(log.String("component", "collab")),
		onDomainUpdate: onDomainUpdate,
	}
	s.sub = router.OnMessage(s.handle)
	return s
}

// Close detaches the service from the router.
func (s *Service) Close() {
	s.sub.Cancel()
}

func (s *Service) handle(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeTableUpdated:
		s.forward(DomainUpdate{
			ElementType: protocol.ElementTable,
			ElementID:   msg.TableID,
			Data:        msg.Data,
			UserID:      msg.UserID,
			Timestamp:   msg.Timestamp,
		})
	case protocol.TypeRelationshipUpdated:
		s.forward(DomainUpdate{
			ElementType: protocol.ElementRelationship,
			ElementID:   msg.RelationshipID,
			Data:        msg.Data,
			UserID:      msg.UserID,
			Timestamp:   msg.Timestamp,
		})
	case protocol.TypePresenceUpdate:
		s.presence.UpdateParticipantPresence(msg.UserID, msg.CursorPosition, msg.SelectedElements)
	case protocol.TypeConflictWarning:
		s.conflicts.Add(ConflictDetails{
			ElementType: msg.ElementType,
			ElementID:   msg.ElementID,
			Message:     msg.Text,
			Timestamp:   msg.Timestamp,
		})
	default:
		s.logger.Debug("ignoring message", log.String("type", string(msg.Type)))
	}
}

func (s *Service) forward(update DomainUpdate) {
	if s.onDomainUpdate == nil {
		return
	}
	s.onDomainUpdate(update)
}
