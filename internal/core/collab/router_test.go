package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

type fakeSender struct {
	handler func(msg *protocol.Message)
	sent    []*protocol.Message
	sendErr error
}

func (f *fakeSender) Send(msg *protocol.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) OnMessage(h func(msg *protocol.Message)) {
	f.handler = h
}

func (f *fakeSender) deliver(msg *protocol.Message) {
	f.handler(msg)
}

func newTestRouter() (*Router, *fakeSender) {
	sender := &fakeSender{}
	router := NewRouter("ws-1", sender, clock.NewFake(), log.Nop())
	return router, sender
}

func TestRouterDeliversInRegistrationOrder(t *testing.T) {
	router, sender := newTestRouter()

	var got []string
	router.OnMessage(func(*protocol.Message) { got = append(got, "a") })
	router.OnMessage(func(*protocol.Message) { got = append(got, "b") })
	router.OnMessage(func(*protocol.Message) { got = append(got, "c") })

	sender.deliver(&protocol.Message{Type: protocol.TypePresenceUpdate})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRouterPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	router, sender := newTestRouter()

	var got []string
	router.OnMessage(func(*protocol.Message) { got = append(got, "first") })
	router.OnMessage(func(*protocol.Message) { panic("boom") })
	router.OnMessage(func(*protocol.Message) { got = append(got, "last") })

	sender.deliver(&protocol.Message{Type: protocol.TypeTableUpdated})
	assert.Equal(t, []string{"first", "last"}, got)
}

func TestSubscriptionCancelDeregisters(t *testing.T) {
	router, sender := newTestRouter()

	var calls int
	sub := router.OnMessage(func(*protocol.Message) { calls++ })

	sender.deliver(&protocol.Message{Type: protocol.TypePresenceUpdate})
	require.Equal(t, 1, calls)

	sub.Cancel()
	sender.deliver(&protocol.Message{Type: protocol.TypePresenceUpdate})
	assert.Equal(t, 1, calls)

	// Cancelling twice is harmless.
	sub.Cancel()
}

func TestOutboundInjectsWorkspaceID(t *testing.T) {
	router, sender := newTestRouter()

	require.NoError(t, router.SendTableUpdate("tbl-1", []byte(`{"name":"orders"}`)))
	require.NoError(t, router.SendRelationshipUpdate("rel-1", []byte(`{}`)))
	require.NoError(t, router.SendPresence(&protocol.CursorPosition{X: 1, Y: 2}, []string{"tbl-1"}))

	require.Len(t, sender.sent, 3)
	assert.Equal(t, protocol.TypeUpdateTable, sender.sent[0].Type)
	assert.Equal(t, "tbl-1", sender.sent[0].TableID)
	assert.Equal(t, protocol.TypeUpdateRelationship, sender.sent[1].Type)
	assert.Equal(t, "rel-1", sender.sent[1].RelationshipID)
	assert.Equal(t, protocol.TypePresenceUpdate, sender.sent[2].Type)
	for _, msg := range sender.sent {
		assert.Equal(t, "ws-1", msg.WorkspaceID)
	}
}
