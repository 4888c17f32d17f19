// Package collab holds the collaboration-session state: typed message
// routing, participant presence, and the conflict log.
package collab

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

// Sender is the half of the connection the router talks to.
type Sender interface {
	Send(msg *protocol.Message) error
	OnMessage(h func(msg *protocol.Message))
}

// Handler receives every parsed inbound message; type filtering is the
// handler's responsibility.
type Handler func(msg *protocol.Message)

// Subscription is the handle returned by OnMessage. Cancel deregisters.
type Subscription struct {
	id     string
	cancel func()
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Router is typed publish/subscribe over one connection. It holds no
// domain state; outbound helpers inject the workspace id.
type Router struct {
	workspaceID string
	conn        Sender
	clock       clock.Clock
	logger      log.Log

	mu   sync.RWMutex
	subs []*routerSub
}

type routerSub struct {
	id      string
	handler Handler
}

// NewRouter wires a Router onto the connection's inbound stream.
func NewRouter(workspaceID string, conn Sender, clk clock.Clock, logger log.Log) *Router {
	r := &Router{
		workspaceID: workspaceID,
		conn:        conn,
		clock:       clk,
		logger:      logger.With(log.String("component", "router")),
	}
	conn.OnMessage(r.dispatch)
	return r
}

// OnMessage registers a handler for every inbound message. Handlers run
// in registration order; a panicking handler does not stop delivery to
// the rest.
func (r *Router) OnMessage(h Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.subs = append(r.subs, &routerSub{id: id, handler: h})
	return &Subscription{
		id: id,
		cancel: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i], r.subs[i+1:]...)
					return
				}
			}
		},
	}
}

// SendTableUpdate publishes a local table mutation.
func (r *Router) SendTableUpdate(tableID string, data json.RawMessage) error {
	return r.conn.Send(&protocol.Message{
		Type:        protocol.TypeUpdateTable,
		WorkspaceID: r.workspaceID,
		TableID:     tableID,
		Data:        data,
		Timestamp:   r.clock.Now().UTC(),
	})
}

// SendRelationshipUpdate publishes a local relationship mutation.
func (r *Router) SendRelationshipUpdate(relationshipID string, data json.RawMessage) error {
	return r.conn.Send(&protocol.Message{
		Type:           protocol.TypeUpdateRelationship,
		WorkspaceID:    r.workspaceID,
		RelationshipID: relationshipID,
		Data:           data,
		Timestamp:      r.clock.Now().UTC(),
	})
}

// SendPresence publishes the local user's cursor and selection.
func (r *Router) SendPresence(cursor *protocol.CursorPosition, selectedElements []string) error {
	return r.conn.Send(&protocol.Message{
		Type:             protocol.TypePresenceUpdate,
		WorkspaceID:      r.workspaceID,
		CursorPosition:   cursor,
		SelectedElements: selectedElements,
		Timestamp:        r.clock.Now().UTC(),
	})
}

func (r *Router) dispatch(msg *protocol.Message) {
	r.mu.RLock()
	subs := make([]*routerSub, len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()

	for _, s := range subs {
		r.invoke(s, msg)
	}
}

func (r *Router) invoke(s *routerSub, msg *protocol.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message handler panicked",
				log.String("subscription", s.id),
				log.Any("panic", rec))
		}
	}()
	s.handler(msg)
}
