package connection

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Transport is the minimal surface of a live channel the Connection uses.
type Transport interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a Transport to an endpoint. Injected so tests can fake the
// network.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// NewWebSocketDialer returns the production Dialer backed by
// gorilla/websocket.
func NewWebSocketDialer() Dialer {
	return &wsDialer{
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
	}
}

type wsDialer struct {
	dialer *websocket.Dialer
}

func (d *wsDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	conn, _, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial")
	}
	return &wsTransport{conn: conn, writeTimeout: 10 * time.Second}, nil
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// Write mutex to ensure thread-safe writes.
	writeMu sync.Mutex
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Only text and binary frames carry protocol messages.
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
