// Package remote talks to the workspace persistence service over HTTP.
// It is the engine's push/pull backend and the mode controller's
// reachability probe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/syncengine"
)

// TokenFunc supplies the current bearer credential. It returns the empty
// string when the client is unauthenticated.
type TokenFunc func() string

// Client is an HTTP workspace store.
type Client struct {
	http    *http.Client
	baseURL string
	token   TokenFunc
	logger  log.Log
}

func NewClient(httpClient *http.Client, baseURL string, token TokenFunc, logger log.Log) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		token:   token,
		logger:  logger.With(log.String("component", "remote")),
	}
}

// SaveResource pushes one resource to the remote workspace.
func (c *Client) SaveResource(ctx context.Context, workspaceID string, res syncengine.Resource) error {
	path := "/workspaces/" + workspaceID + "/resources/" + res.ID

	payload, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encode resource")
	}

	resp, err := c.do(ctx, http.MethodPut, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return &ConflictError{WorkspaceID: workspaceID, ResourceID: res.ID}
	default:
		return errors.Errorf("save resource %s: remote returned %d", res.ID, resp.StatusCode)
	}
}

// LoadWorkspace fetches the full remote snapshot. A workspace the remote
// has never seen loads as nil with no error.
func (c *Client) LoadWorkspace(ctx context.Context, workspaceID string) (*syncengine.Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, "/workspaces/"+workspaceID, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, errors.Errorf("load workspace %s: remote returned %d", workspaceID, resp.StatusCode)
	}

	var snap syncengine.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "decode workspace snapshot")
	}
	return &snap, nil
}

// Reachable reports whether the remote answers its health endpoint.
// Any transport error or non-2xx status counts as unreachable.
func (c *Client) Reachable(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		c.logger.Debug("health probe failed", log.Error(err))
		return false
	}
	defer drain(resp)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
