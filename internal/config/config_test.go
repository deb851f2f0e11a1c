package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	err := Load("xypriss-test", "0.0.0-test", "")
	require.NoError(t, err)

	c := Get()
	assert.Equal(t, defaultPort, c.Server.Port)
	assert.Equal(t, defaultCacheStrategy, c.Cache.Strategy)
	assert.Equal(t, defaultCacheTTLSecs, c.Cache.TTLSecs)
	assert.Equal(t, c.Cache.TTL.Seconds(), float64(defaultCacheTTLSecs))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xypriss.toml")
	contents := `
[server]
port = 4000
host = "127.0.0.1"

[cache]
strategy = "memory"
ttl = 120
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	err := Load("xypriss-test", "0.0.0-test", path)
	require.NoError(t, err)

	c := Get()
	assert.Equal(t, 4000, c.Server.Port)
	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, "memory", c.Cache.Strategy)
	assert.EqualValues(t, 120, c.Cache.TTL.Seconds())
}

func TestLoadMissingFile(t *testing.T) {
	err := Load("xypriss-test", "0.0.0-test", "/nonexistent/xypriss.toml")
	assert.Error(t, err)
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	contents := `
[cache]
strategy = "not-a-real-strategy"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	err := Load("xypriss-test", "0.0.0-test", path)
	assert.Error(t, err)
}

func TestStringRedactsSecrets(t *testing.T) {
	require.NoError(t, Load("xypriss-test", "0.0.0-test", ""))
	c := Get()
	c.Cache.Redis.Password = "hunter2"
	c.Security.Authentication.JWT.Secret = "super-secret"

	out := c.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "*****")
}

func TestUpdateReplacesSnapshotAtomically(t *testing.T) {
	require.NoError(t, Load("xypriss-test", "0.0.0-test", ""))
	next := *Get()
	serverCopy := *next.Server
	serverCopy.Port = 9999
	next.Server = &serverCopy

	require.NoError(t, Update(&next))
	assert.Equal(t, 9999, Get().Server.Port)
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	require.NoError(t, Load("xypriss-test", "0.0.0-test", ""))

	a := Get()
	a.Server.Port = 12345
	a.RequestManagement.Timeout.Routes["/slow"] = 90
	a.Logging.Components = append(a.Logging.Components, "mutated")

	b := Get()
	assert.NotEqual(t, 12345, b.Server.Port)
	assert.NotContains(t, b.RequestManagement.Timeout.Routes, "/slow")
	assert.NotContains(t, b.Logging.Components, "mutated")
}

func TestUpdateStoresPrivateClone(t *testing.T) {
	require.NoError(t, Load("xypriss-test", "0.0.0-test", ""))

	next := Get()
	next.Server.Port = 4242
	require.NoError(t, Update(next))

	// Mutating next after publication must not reach the snapshot.
	next.Server.Port = 1
	assert.Equal(t, 4242, Get().Server.Port)
}
