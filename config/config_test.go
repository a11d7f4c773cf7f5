package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[server]
name = "clusterd-test"
environment = "test"
[server.http]
port = 9000

[database]
driver = "postgres"
dsn = "host=localhost user=app dbname=app"

[jwt]
secret = "0123456789abcdef0123"
access_expire = "5m"

[ratelimit]
enabled = true
global_limit = 3
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	var cfg Config
	require.NoError(t, Load(path, &cfg))

	assert.Equal(t, "clusterd-test", cfg.Server.Name)
	assert.Equal(t, 9000, cfg.Server.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessExpire)
	assert.Equal(t, 7, cfg.JWT.RefreshExpireDays)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 3, cfg.RateLimit.GlobalLimit)
	assert.Equal(t, "rl:route", cfg.RateLimit.RoutePrefix)
	assert.Equal(t, 4, cfg.Worker.Workers)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestMask(t *testing.T) {
	m := map[string]any{
		"Name":     "clusterd",
		"Password": "p",
		"Database": map[string]any{"DSN": "postgres://u:p@h/db", "Driver": "postgres"},
		"JWT":      map[string]any{"Secret": "s"},
	}
	mask(m)

	assert.Equal(t, "clusterd", m["Name"])
	assert.Equal(t, "******", m["Password"])
	assert.Equal(t, "******", m["Database"].(map[string]any)["DSN"])
	assert.Equal(t, "postgres", m["Database"].(map[string]any)["Driver"])
	assert.Equal(t, "******", m["JWT"].(map[string]any)["Secret"])
}
