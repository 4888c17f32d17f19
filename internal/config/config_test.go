package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, time.Second, c.Collaboration.BaseDelay.Std())
	assert.Equal(t, 30*time.Second, c.Collaboration.MaxDelay.Std())
	assert.Equal(t, 5, c.Collaboration.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, c.Sync.ProbeInterval.Std())
	assert.Equal(t, 2*time.Second, c.Auth.PollInterval.Std())
	assert.Equal(t, 300*time.Second, c.Auth.PollTimeout.Std())
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadOverridesDefaults(t *testing.T) {
	yaml := `
collaboration:
  endpoint: wss://collab.example.test/ws
  base_delay: 500ms
  max_reconnect_attempts: 3
sync:
  remote_url: https://api.example.test
auth:
  base_url: https://auth.example.test
  poll_interval: 1s
storage:
  path: /tmp/modelsync.db
log_level: debug
`
	c, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "wss://collab.example.test/ws", c.Collaboration.Endpoint)
	assert.Equal(t, 500*time.Millisecond, c.Collaboration.BaseDelay.Std())
	assert.Equal(t, 3, c.Collaboration.MaxReconnectAttempts)
	assert.Equal(t, "https://api.example.test", c.Sync.RemoteURL)
	assert.Equal(t, time.Second, c.Auth.PollInterval.Std())
	assert.Equal(t, "/tmp/modelsync.db", c.Storage.Path)
	assert.Equal(t, "debug", c.LogLevel)

	// Fields the file omits keep their defaults.
	assert.Equal(t, 30*time.Second, c.Collaboration.MaxDelay.Std())
	assert.Equal(t, 300*time.Second, c.Auth.PollTimeout.Std())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(strings.NewReader("collaboration:\n  base_delay: fast\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fast")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("collaboration: ["))
	require.Error(t, err)
}
