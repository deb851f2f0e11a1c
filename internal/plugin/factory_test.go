package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

func TestLoadConfiguredInstantiatesByFactoryName(t *testing.T) {
	made := &fakePlugin{id: "audit"}
	RegisterFactory("audit", func() model.PluginImpl { return made })

	e := New()
	err := LoadConfigured(e, &config.PluginsConfig{
		Register: []config.PluginRegistration{
			{ID: "audit", Type: "security", Priority: 5, AllowedHooks: []string{"onRequestStart"}},
		},
	})
	require.NoError(t, err)

	e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	assert.Equal(t, 1, made.handleCnt)
}

func TestLoadConfiguredUnknownFactorySkipped(t *testing.T) {
	e := New()
	err := LoadConfigured(e, &config.PluginsConfig{
		Register: []config.PluginRegistration{{ID: "no-such-plugin", Type: "other"}},
	})
	require.NoError(t, err)
	assert.Empty(t, e.List())
}

func TestPluginPermissionsOverrideAllowedHooks(t *testing.T) {
	made := &fakePlugin{id: "locked"}
	RegisterFactory("locked", func() model.PluginImpl { return made })

	e := New()
	err := LoadConfigured(e, &config.PluginsConfig{
		Register: []config.PluginRegistration{
			{ID: "locked", Type: "other", AllowedHooks: []string{"onRequestStart", "onRequestEnd"}},
		},
		PluginPermissions: map[string][]string{"locked": {"onRequestEnd"}},
	})
	require.NoError(t, err)

	e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	assert.Equal(t, 0, made.handleCnt)
	e.Dispatch(model.HookOnRequestEnd, &model.Request{}, model.NewResponse())
	assert.Equal(t, 1, made.handleCnt)
}

func TestDeniedHookInvocationCounted(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "gated"}
	_, err := e.Register(p, model.PluginTypeOther, 0, map[model.Hook]bool{
		model.HookOnRequestStart: true,
		model.HookOnCacheHit:     false,
	})
	require.NoError(t, err)

	e.Dispatch(model.HookOnCacheHit, &model.Request{}, model.NewResponse())
	e.Dispatch(model.HookOnCacheHit, &model.Request{}, model.NewResponse())

	stats, err := e.GetPluginStats("gated")
	require.NoError(t, err)
	assert.Equal(t, 0, p.handleCnt)
	assert.Equal(t, int64(2), stats.DeniedInvocations)
	assert.Zero(t, stats.Invocations)
}
