// Package connection owns one logical channel to the collaboration
// endpoint: handshake, liveness, and reconnection with exponential backoff.
package connection

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/protocol"
	"github.com/modelworks/modelsync/pkg/clock"
)

// State of the channel. Transitions happen only inside Connection.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Config holds connection settings.
type Config struct {
	// BaseURL is the collaboration endpoint, e.g. "wss://host/collab".
	// The workspace id and credential are appended per session.
	BaseURL string

	BaseDelay            time.Duration
	MaxDelay             time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns the production reconnect policy: first retry after
// one second, doubling up to thirty seconds, five attempts before giving up.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:              baseURL,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// MessageHandler receives every successfully parsed inbound message.
type MessageHandler func(msg *protocol.Message)

// Connection maintains exactly one logical channel per (workspace,
// credential) pair. After Disconnect it is terminal and not reusable.
type Connection struct {
	config Config
	dialer Dialer
	clock  clock.Clock
	logger log.Log

	mu             sync.Mutex
	state          State
	transport      Transport
	workspaceID    string
	token          string
	manualClose    bool
	attempts       int
	reconnectTimer clock.Timer
	readGen        int

	handlers      []MessageHandler
	onError       func(error)
	onStateChange func(State)
}

// New constructs a Connection. The dialer and clock are injected so tests
// can run against fakes.
func New(config Config, dialer Dialer, clk clock.Clock, logger log.Log) *Connection {
	return &Connection{
		config: config,
		dialer: dialer,
		clock:  clk,
		logger: logger.With(log.String("component", "connection")),
	}
}

// OnMessage registers a handler invoked for every parsed inbound message.
// Handlers are cleared by Disconnect.
func (c *Connection) OnMessage(h func(msg *protocol.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manualClose {
		return
	}
	c.handlers = append(c.handlers, MessageHandler(h))
}

// OnError registers the transport error callback. Errors reported here do
// not themselves trigger reconnection; the close that follows does.
func (c *Connection) OnError(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = f
}

// OnStateChange registers a callback observing state transitions.
func (c *Connection) OnStateChange(f func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = f
}

// State returns the current channel state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the count of consecutive reconnect attempts.
func (c *Connection) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Open establishes the channel for the given workspace using a short-lived
// credential. A failed handshake is treated like an unexpected close and
// schedules a backoff reconnect.
func (c *Connection) Open(ctx context.Context, workspaceID, token string) error {
	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		return ErrConnectionDisposed
	}
	if c.state != StateClosed {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.workspaceID = workspaceID
	c.token = token
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	return c.dial(ctx)
}

// Send serializes and transmits a message while the channel is open.
// Anywhere else it is a no-op that logs a warning: dropped sends are not
// queued or retried.
func (c *Connection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	if c.state != StateOpen || c.transport == nil {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("send skipped, channel is not open",
			log.String("state", state.String()),
			log.String("type", string(msg.Type)))
		return nil
	}
	t := c.transport
	c.mu.Unlock()

	data, err := protocol.Encode(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	if err := t.WriteMessage(data); err != nil {
		err = errors.Wrap(err, "write message")
		c.reportError(err)
		return err
	}
	return nil
}

// Disconnect is the manual, terminal close: it cancels any pending
// reconnect, closes the channel, and clears all registered handlers.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		return
	}
	c.manualClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	t := c.transport
	c.transport = nil
	c.handlers = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	c.logger.Info("disconnected", log.String("workspace_id", c.workspaceID))
}

func (c *Connection) dial(ctx context.Context) error {
	endpoint := c.endpoint()
	t, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		c.logger.Error("failed to open collaboration channel",
			log.String("workspace_id", c.workspaceID),
			log.Error(err))
		c.mu.Lock()
		c.setStateLocked(StateClosed)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.reportError(errors.Wrap(err, "dial collaboration endpoint"))
		return errors.Wrap(err, "dial collaboration endpoint")
	}

	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		_ = t.Close()
		return ErrConnectionDisposed
	}
	c.transport = t
	c.attempts = 0
	c.readGen++
	gen := c.readGen
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.logger.Info("collaboration channel open",
		log.String("workspace_id", c.workspaceID))

	go c.readLoop(t, gen)
	return nil
}

func (c *Connection) readLoop(t Transport, gen int) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		msg, derr := protocol.Decode(data)
		if derr != nil {
			c.logger.Warn("dropping malformed message", log.Error(derr))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Connection) dispatch(msg *protocol.Message) {
	c.mu.Lock()
	handlers := make([]MessageHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (c *Connection) handleClose(gen int, err error) {
	c.mu.Lock()
	if gen != c.readGen {
		// A newer channel superseded this read loop.
		c.mu.Unlock()
		return
	}
	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	wasManual := c.manualClose
	c.setStateLocked(StateClosed)
	if !wasManual {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if wasManual {
		return
	}
	c.logger.Warn("collaboration channel closed",
		log.String("workspace_id", c.workspaceID),
		log.Error(err))
	c.reportError(err)
}

// scheduleReconnectLocked arms the backoff timer. The Nth consecutive
// attempt fires after min(base * 2^(N-1), max); past the ceiling the
// caller must reopen explicitly.
func (c *Connection) scheduleReconnectLocked() {
	if c.manualClose {
		return
	}
	if c.attempts >= c.config.MaxReconnectAttempts {
		c.logger.Warn("reconnect ceiling reached, giving up",
			log.Int("attempts", c.attempts))
		return
	}
	c.attempts++
	delay := c.config.BaseDelay << (c.attempts - 1)
	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	c.logger.Info("scheduling reconnect",
		log.Int("attempt", c.attempts),
		log.Duration("delay", delay))
	c.reconnectTimer = c.clock.AfterFunc(delay, c.reconnect)
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	if c.manualClose || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	attempt := c.attempts
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Info("reconnecting",
		log.String("workspace_id", c.workspaceID),
		log.Int("attempt", attempt))
	_ = c.dial(context.Background())
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if f := c.onStateChange; f != nil {
		go f(s)
	}
}

func (c *Connection) reportError(err error) {
	c.mu.Lock()
	f := c.onError
	c.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (c *Connection) endpoint() string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	return base + "/" + url.PathEscape(c.workspaceID) + "?token=" + url.QueryEscape(c.token)
}
