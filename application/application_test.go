package application

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/switchboard-go/internal/client"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv(envConfigFilePath, "")

	_, s, err := loadSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", s.Hub.ListenAddress())
	assert.Equal(t, time.Hour, s.Hub.IdleTimeout)
	assert.Equal(t, time.Minute, s.Hub.SweepInterval)
	assert.Equal(t, 256, s.Hub.SendQueueSize)
	assert.Equal(t, 1024*1024, s.Hub.MaxFrameSize)
	assert.Equal(t, 10*time.Second, s.Hub.WriteTimeout)
	assert.Equal(t, 1024, s.Hub.MaxConnections)
	assert.Empty(t, s.MetricsAddress)
	assert.Equal(t, "info", s.Log.Level)
	assert.Empty(t, s.ConfigFile)
}

func TestLoadSettingsPrecedence(t *testing.T) {
	path := writeConfig(t, `
hub:
  host: 0.0.0.0
  port: 9000
  idleTimeoutSeconds: 120
  sweepIntervalSeconds: 5
log:
  level: debug
  stdout: false
`)
	t.Setenv(envConfigFilePath, path)
	t.Setenv("SWITCHBOARD_HUB_PORT", "9100")
	t.Setenv("SWITCHBOARD_HUB_IDLETIMEOUTSECONDS", "300")

	_, s, err := loadSettings([]string{"--idle-timeout-seconds", "30", "--log-level=warn"})
	require.NoError(t, err)
	assert.Equal(t, path, s.ConfigFile)
	assert.Equal(t, "0.0.0.0", s.Hub.Host)
	assert.Equal(t, 9100, s.Hub.Port)
	assert.Equal(t, 30*time.Second, s.Hub.IdleTimeout)
	assert.Equal(t, 5*time.Second, s.Hub.SweepInterval)
	assert.Equal(t, "warn", s.Log.Level)
	assert.False(t, s.Log.Stdout)
}

func TestLoadSettingsConfigFlagWins(t *testing.T) {
	fromEnv := writeConfig(t, "hub:\n  port: 1111\n")
	fromFlag := writeConfig(t, "hub:\n  port: 2222\n")
	t.Setenv(envConfigFilePath, fromEnv)

	_, s, err := loadSettings([]string{"--config", fromFlag})
	require.NoError(t, err)
	assert.Equal(t, 2222, s.Hub.Port)
}

func TestLoadSettingsErrors(t *testing.T) {
	t.Setenv(envConfigFilePath, "")

	_, _, err := loadSettings([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, _, err = loadSettings([]string{"--idle-timeout-seconds=-1"})
	assert.Error(t, err)

	_, _, err = loadSettings([]string{"--port", "70000"})
	assert.Error(t, err)

	_, _, err = loadSettings([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestRunServesHubAndMetrics(t *testing.T) {
	t.Setenv(envConfigFilePath, "")
	t.Setenv("SWITCHBOARD_LOG_STDOUT", "false")

	app := New([]string{"--host", "127.0.0.1", "--port", "0", "--metrics-address", "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-app.Ready():
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("application not ready")
	}

	c, err := client.Dial(ctx, app.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Do(ctx, "list_sessions", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessions":[]}`, string(reply.Raw))

	resp, err := http.Get("http://" + app.MetricsAddr().String() + metricsPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "switchboard_hub_connections")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv(envConfigFilePath, "")
	err := New([]string{"--sweep-interval-seconds", "0"}).Run(context.Background())
	assert.Error(t, err)
}
