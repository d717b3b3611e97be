package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, time.Second, c.RefreshInterval())
	assert.Equal(t, 30*time.Second, c.PushInterval())
	assert.Equal(t, time.Minute, c.HeartbeatTimeout())
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, ":9090", c.HTTP.Addr)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
refresh_interval_ms: 2000
push_interval_ms: 15000
heartbeat_timeout_ms: 45000
log_level: debug
redis:
  addr: redis.internal:6379
  db: 2
bus:
  url: ws://bus.internal/ws
postgres:
  dsn: postgres://app@db/subs
labels:
  path: /etc/transitdeck/labels.yaml
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.RefreshInterval())
	assert.Equal(t, 15*time.Second, c.PushInterval())
	assert.Equal(t, 45*time.Second, c.HeartbeatTimeout())
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "redis.internal:6379", c.Redis.Addr)
	assert.Equal(t, 2, c.Redis.DB)
	assert.Equal(t, "ws://bus.internal/ws", c.Bus.URL)
	assert.Equal(t, "postgres://app@db/subs", c.Postgres.DSN)
	assert.Equal(t, "/etc/transitdeck/labels.yaml", c.Labels.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestHeartbeatTimeoutClamps(t *testing.T) {
	cases := []struct {
		name   string
		inMs   int
		wantMs int
	}{
		{"zero defaults", 0, DefaultHeartbeatTimeoutMs},
		{"below min clamps up", 1000, MinHeartbeatTimeoutMs},
		{"above max clamps down", 900000, MaxHeartbeatTimeoutMs},
		{"in range passes through", 45000, 45000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Config{HeartbeatTimeoutMs: tc.inMs}
			c.normalize()
			assert.Equal(t, tc.wantMs, c.HeartbeatTimeoutMs)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRANSITDECK_REDIS_ADDR", "env-redis:6379")
	t.Setenv("TRANSITDECK_REFRESH_INTERVAL_MS", "500")
	t.Setenv("TRANSITDECK_LOG_LEVEL", "warn")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-redis:6379", c.Redis.Addr)
	assert.Equal(t, 500*time.Millisecond, c.RefreshInterval())
	assert.Equal(t, "warn", c.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: file-redis:6379\n"), 0o644))
	t.Setenv("TRANSITDECK_REDIS_ADDR", "env-redis:6379")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-redis:6379", c.Redis.Addr, "environment wins over file")
}
