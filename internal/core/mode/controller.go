// Package mode is the single process-wide gate on networked operation.
// The application is either online (networked, authenticated) or offline
// (local-only); every other component consults this gate before touching
// the network.
package mode

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/pkg/clock"
)

// Value of the mode gate.
type Value string

const (
	Online  Value = "online"
	Offline Value = "offline"
)

// State is the persisted mode preference.
type State struct {
	Value            Value
	IsManualOverride bool
}

// Store persists mode state across restarts.
type Store interface {
	// LoadMode returns nil when no preference has been saved yet.
	LoadMode() (*State, error)
	SaveMode(state State) error
}

// Prober answers whether the remote endpoint is reachable. Probing does
// not require authentication.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Authenticator reports whether the user holds a valid credential.
type Authenticator interface {
	IsAuthenticated() bool
}

// ConnectionCloser tears down the active collaboration channel. Invoked
// on every transition to offline so a channel is never open while the
// mode gate is closed.
type ConnectionCloser interface {
	Disconnect()
}

// Config holds the availability-probe policy.
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

// Controller owns the mode state. Automatic reconciliation follows
// reachability while no manual override is set; manual transitions to
// online are additionally gated by authentication.
type Controller struct {
	config Config
	store  Store
	prober Prober
	auth   Authenticator
	closer ConnectionCloser
	clock  clock.Clock
	logger log.Log

	probes singleflight.Group

	mu    sync.RWMutex
	state State

	ticker    clock.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// NewController loads the persisted preference, defaulting to offline
// with no override when none exists.
func NewController(config Config, store Store, prober Prober, auth Authenticator, closer ConnectionCloser, clk clock.Clock, logger log.Log) *Controller {
	c := &Controller{
		config: config,
		store:  store,
		prober: prober,
		auth:   auth,
		closer: closer,
		clock:  clk,
		logger: logger.With(log.String("component", "mode")),
		state:  State{Value: Offline},
		done:   make(chan struct{}),
	}

	persisted, err := store.LoadMode()
	if err != nil {
		c.logger.Warn("failed to load persisted mode, starting offline", log.Error(err))
	} else if persisted != nil {
		c.state = *persisted
	}
	return c
}

// Mode returns the current state.
func (c *Controller) Mode() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsOnline reports whether networked operations are currently permitted.
func (c *Controller) IsOnline() bool {
	return c.Mode().Value == Online
}

// CheckOnlineMode probes remote availability without changing mode.
// Concurrent probes are collapsed into one.
func (c *Controller) CheckOnlineMode(ctx context.Context) bool {
	v, _, _ := c.probes.Do("probe", func() (any, error) {
		probeCtx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
		defer cancel()
		return c.prober.Reachable(probeCtx), nil
	})
	return v.(bool)
}

// Start runs one reconcile pass immediately, then periodically until
// Close.
func (c *Controller) Start(ctx context.Context) {
	c.reconcile(ctx)
	c.ticker = c.clock.NewTicker(c.config.ProbeInterval)
	go func() {
		for {
			select {
			case <-c.ticker.C():
				select {
				case <-c.done:
					return
				default:
				}
				c.reconcile(ctx)
			case <-c.done:
				return
			}
		}
	}()
}

// Close stops automatic reconciliation.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ticker != nil {
			c.ticker.Stop()
		}
	})
}

// SetMode applies an explicit transition. Going online manually requires
// authentication; going offline is always permitted and tears down any
// open connection.
func (c *Controller) SetMode(v Value, manual bool) error {
	if v == Online && manual && !c.auth.IsAuthenticated() {
		c.logger.Warn("refusing manual online transition while unauthenticated")
		return ErrAuthRequired
	}
	c.apply(v, manual)
	return nil
}

// ClearOverride resumes automatic availability reconciliation.
func (c *Controller) ClearOverride(ctx context.Context) {
	c.mu.Lock()
	changed := c.state.IsManualOverride
	c.state.IsManualOverride = false
	c.mu.Unlock()
	if changed {
		c.persist()
		c.reconcile(ctx)
	}
}

// reconcile sets mode to match reachability unless manually overridden.
func (c *Controller) reconcile(ctx context.Context) {
	c.mu.RLock()
	overridden := c.state.IsManualOverride
	c.mu.RUnlock()
	if overridden {
		return
	}

	target := Offline
	if c.CheckOnlineMode(ctx) {
		target = Online
	}
	c.apply(target, false)
}

func (c *Controller) apply(v Value, manual bool) {
	c.mu.Lock()
	prev := c.state
	c.state = State{Value: v, IsManualOverride: manual}
	changed := prev != c.state
	c.mu.Unlock()

	if changed {
		c.logger.Info("mode changed",
			log.String("mode", string(v)),
			log.Bool("manual", manual))
		c.persist()
	}
	if v == Offline && prev.Value != Offline && c.closer != nil {
		c.closer.Disconnect()
	}
}

func (c *Controller) persist() {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if err := c.store.SaveMode(state); err != nil {
		c.logger.Error("failed to persist mode", log.Error(err))
	}
}
