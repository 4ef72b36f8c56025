package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.DB.Type)
	assert.True(t, cfg.Capture.Enabled)
	assert.True(t, cfg.Capture.IgnoreSuccessfulGet)
	assert.False(t, cfg.Capture.ErrorPage)
	assert.Equal(t, 5*time.Second, cfg.Capture.PersistTimeout)
	assert.Equal(t, 5*time.Second, cfg.Capture.NotifyTimeout)
	assert.Equal(t, "/_apilog", cfg.API.Prefix)
	assert.False(t, cfg.API.RateLimit.Enabled)
	assert.Empty(t, cfg.Notify.Type)
	assert.Empty(t, cfg.Proxy.Target)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("APILOG_DB_TYPE", "sqlite")
	t.Setenv("APILOG_DB_DSN", "file:audit.db")
	t.Setenv("APILOG_CAPTURE_IGNORE_SUCCESSFUL_GET", "false")
	t.Setenv("APILOG_CAPTURE_PERSIST_TIMEOUT", "250ms")
	t.Setenv("APILOG_API_PREFIX", "/audit")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Type)
	assert.Equal(t, "file:audit.db", cfg.DB.DSN)
	assert.False(t, cfg.Capture.IgnoreSuccessfulGet)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.PersistTimeout)
	assert.Equal(t, "/audit", cfg.API.Prefix)
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Type)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, time.Hour, cfg.DB.Pool.ConnMaxLifetime)
	require.Len(t, cfg.Capture.Routes, 3)
	assert.Equal(t, RouteConfig{Method: "POST", Path: "/api/orders", Name: "orders:create", Handler: "orders.Create"}, cfg.Capture.Routes[0])
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.0/8"}, cfg.API.RateLimit.WhiteList)
	assert.Equal(t, "redis", cfg.API.RateLimit.Storage.Type)
	assert.Equal(t, 6379, cfg.API.RateLimit.Storage.Redis.Port)
	assert.Equal(t, "apilog", cfg.Notify.Webhook.Headers["x-alert-source"])
	assert.Equal(t, "apilog:alerts", cfg.Notify.Redis.Channel)
	assert.Equal(t, "orders", cfg.Transform.Services["orders"].ServiceName)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Istanbul", loc.String())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  type: cassandra\n"), 0o644))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "db.type")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"timezone":       {func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		"sqlite dsn":     {func(c *Config) { c.DB.Type = "sqlite" }, "db.dsn"},
		"persist":        {func(c *Config) { c.Capture.PersistTimeout = 0 }, "capture.persist_timeout"},
		"notify timeout": {func(c *Config) { c.Capture.NotifyTimeout = -time.Second }, "capture.notify_timeout"},
		"route path":     {func(c *Config) { c.Capture.Routes = []RouteConfig{{Path: "orders"}} }, "capture.routes[0].path"},
		"prefix":         {func(c *Config) { c.API.Prefix = "logs" }, "api.prefix"},
		"rate limit": {func(c *Config) {
			c.API.RateLimit.Enabled = true
			c.API.RateLimit.Requests = 0
		}, "api.rate_limit"},
		"rate store": {func(c *Config) {
			c.API.RateLimit.Enabled = true
			c.API.RateLimit.Storage.Type = "memcached"
		}, "api.rate_limit.storage.type"},
		"webhook url": {func(c *Config) { c.Notify.Type = "webhook" }, "notify.webhook.url"},
		"notifier":    {func(c *Config) { c.Notify.Type = "sms" }, "notify.type"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	assert.NoError(t, valid().Validate())
}
