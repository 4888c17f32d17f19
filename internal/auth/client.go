// Package auth implements the browser-based device authentication flow.
// The client initiates a session, hands the user an authorization URL,
// and polls until the session completes, expires, or the polling window
// closes. Credentials live in memory only.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/pkg/clock"
)

// Config holds the auth endpoint and polling policy.
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		PollInterval: 2 * time.Second,
		PollTimeout:  300 * time.Second,
	}
}

// Session identifies one pending browser authorization.
type Session struct {
	StateID string `json:"state_id"`
	AuthURL string `json:"auth_url"`
}

// PollStatus is the server-reported state of a pending session.
type PollStatus string

const (
	StatusPending   PollStatus = "pending"
	StatusCompleted PollStatus = "completed"
	StatusExpired   PollStatus = "expired"
)

// PollResult carries the session status and, once completed, the
// one-time code to exchange for tokens.
type PollResult struct {
	Status PollStatus `json:"status"`
	Code   string     `json:"code,omitempty"`
}

// Tokens is the credential set returned by a successful exchange.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Client drives the device authentication flow against the auth service.
type Client struct {
	config Config
	http   *http.Client
	clock  clock.Clock
	logger log.Log

	mu     sync.RWMutex
	tokens *Tokens
}

func NewClient(config Config, httpClient *http.Client, clk clock.Clock, logger log.Log) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		config: config,
		http:   httpClient,
		clock:  clk,
		logger: logger.With(log.String("component", "auth")),
	}
}

// Initiate starts a new authorization session. The caller is expected to
// open the returned AuthURL in a browser, then call Complete.
func (c *Client) Initiate(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/auth/initiate", nil, &session); err != nil {
		return nil, errors.Wrap(err, "initiate auth session")
	}
	return &session, nil
}

// Poll asks the server for the current state of a session.
func (c *Client) Poll(ctx context.Context, stateID string) (*PollResult, error) {
	var result PollResult
	path := "/auth/poll/" + stateID
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, errors.Wrap(err, "poll auth session")
	}
	return &result, nil
}

// Exchange trades a completed session's one-time code for tokens and
// stores them on the client.
func (c *Client) Exchange(ctx context.Context, code string) (*Tokens, error) {
	var tokens Tokens
	body := map[string]string{"code": code}
	if err := c.do(ctx, http.MethodPost, "/auth/exchange", body, &tokens); err != nil {
		return nil, errors.Wrap(err, "exchange auth code")
	}

	c.mu.Lock()
	c.tokens = &tokens
	c.mu.Unlock()
	c.logger.Info("authentication completed")
	return &tokens, nil
}

// Complete polls the session until it resolves. It returns
// ErrAuthExpired when the server expires the session and ErrAuthTimeout
// when the polling window elapses while the session is still pending.
func (c *Client) Complete(ctx context.Context, session *Session) (*Tokens, error) {
	deadline := c.clock.Now().Add(c.config.PollTimeout)
	ticker := c.clock.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C():
		}

		result, err := c.Poll(ctx, session.StateID)
		if err != nil {
			c.logger.Warn("auth poll failed, retrying", log.Error(err))
		} else {
			switch result.Status {
			case StatusCompleted:
				return c.Exchange(ctx, result.Code)
			case StatusExpired:
				return nil, ErrAuthExpired
			}
		}

		if !c.clock.Now().Before(deadline) {
			return nil, ErrAuthTimeout
		}
	}
}

// IsAuthenticated reports whether the client holds a credential.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens != nil
}

// Token returns the current access token, or the empty string when the
// client is not authenticated.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken
}

// Logout drops the in-memory credential.
func (c *Client) Logout() {
	c.mu.Lock()
	c.tokens = nil
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth service returned %d for %s %s", resp.StatusCode, method, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response body")
		}
	}
	return nil
}
