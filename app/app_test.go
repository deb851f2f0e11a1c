package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

func testConfig(t *testing.T) *config.XyPrissConfig {
	t.Helper()
	require.NoError(t, config.Load("xypriss-test", "0.0.0-test", ""))
	cfg := config.Get()
	cfg.Server.Port = 0 // nothing binds it: Start() is not exercised here
	return cfg
}

func TestNewAssemblesEveryComponent(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	assert.NotNil(t, a.Routes)
	assert.NotNil(t, a.Middleware)
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.Plugins)
	assert.NotNil(t, a.Classifier)
	assert.NotNil(t, a.Network)
	assert.NotNil(t, a.Console)
	assert.NotNil(t, a.Ports)
	assert.NotNil(t, a.Dispatcher)
	assert.NotNil(t, a.Concurrency)
	assert.False(t, a.Ready(), "must not be ready before Start")
}

type hookRecorder struct {
	hooks []model.Hook
}

func (h *hookRecorder) ID() string   { return "hook-recorder" }
func (h *hookRecorder) Init() error  { return nil }
func (h *hookRecorder) Start() error { return nil }
func (h *hookRecorder) Stop() error  { return nil }
func (h *hookRecorder) HandleHook(hook model.Hook, req *model.Request, res *model.Response) error {
	h.hooks = append(h.hooks, hook)
	return nil
}

func TestRouteAnnouncesRegistrationToPlugins(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	rec := &hookRecorder{}
	_, err = a.Plugins.Register(rec, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRouteRegister: true})
	require.NoError(t, err)

	a.Route("GET", "/widgets/:id", func(req *model.Request, res *model.Response) {})

	require.Len(t, rec.hooks, 1)
	assert.Equal(t, model.HookOnRouteRegister, rec.hooks[0])
	_, _, ok := a.Routes.Lookup("GET", "/widgets/7")
	assert.True(t, ok)
}

func TestNewRegistersAdminRoutes(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	for _, p := range adminRoutes {
		_, _, ok := a.Routes.Lookup("GET", p)
		assert.True(t, ok, "expected %s to be routed", p)
	}
}

func TestNewWithClusterEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cluster.Enabled = true
	a, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, a.Cluster)
}

func hasMiddlewareID(a *Application, id string) bool {
	for _, e := range a.Middleware.List() {
		if e.ID == id {
			return true
		}
	}
	return false
}

func TestNewRegistersJWTOnlyWhenSecretSet(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, hasMiddlewareID(a, "xypriss.jwt"), "jwt middleware should not register without a configured secret")

	cfg2 := testConfig(t)
	cfg2.Security.Authentication.JWT.Secret = "s3cret"
	a2, err := New(cfg2)
	require.NoError(t, err)
	assert.True(t, hasMiddlewareID(a2, "xypriss.jwt"))
}

func TestRateLimitAdapterDelegatesToCache(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	adapter := rateLimitAdapter{cache: a.Cache}
	n, reset, err := adapter.IncrCounter(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Greater(t, reset, time.Now().Unix())

	n, reset2, err := adapter.IncrCounter(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	// Same window: the reset anchor must not move.
	assert.Equal(t, reset, reset2)
}
