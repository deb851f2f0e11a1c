package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/model"
)

type fakePlugin struct {
	id        string
	initErr   error
	startErr  error
	hookErr   error
	hookDelay time.Duration
	handleCnt int
}

func (f *fakePlugin) ID() string   { return f.id }
func (f *fakePlugin) Init() error  { return f.initErr }
func (f *fakePlugin) Start() error { return f.startErr }
func (f *fakePlugin) Stop() error  { return nil }
func (f *fakePlugin) HandleHook(hook model.Hook, req *model.Request, res *model.Response) error {
	f.handleCnt++
	if f.hookDelay > 0 {
		time.Sleep(f.hookDelay)
	}
	return f.hookErr
}

func TestRegisterLifecycleSucceeds(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "p1"}
	reg, err := e.Register(p, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRequestStart: true})
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleRunning, reg.GetState())
}

func TestRegisterDuplicateIDRejected(t *testing.T) {
	e := New()
	e.Register(&fakePlugin{id: "dup"}, model.PluginTypeOther, 0, nil)
	_, err := e.Register(&fakePlugin{id: "dup"}, model.PluginTypeOther, 0, nil)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestRegisterInitFailureMarksFailed(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "bad", initErr: errors.New("boom")}
	reg, err := e.Register(p, model.PluginTypeOther, 0, nil)
	assert.Error(t, err)
	assert.Equal(t, model.LifecycleFailed, reg.GetState())
}

func TestDispatchInvokesInPriorityOrder(t *testing.T) {
	e := New()
	var order []string
	low := &orderedPlugin{id: "low", order: &order}
	high := &orderedPlugin{id: "high", order: &order}
	e.Register(low, model.PluginTypeOther, 10, map[model.Hook]bool{model.HookOnRequestStart: true})
	e.Register(high, model.PluginTypeOther, 1, map[model.Hook]bool{model.HookOnRequestStart: true})

	e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	assert.Equal(t, []string{"high", "low"}, order)
}

type orderedPlugin struct {
	id    string
	order *[]string
}

func (p *orderedPlugin) ID() string   { return p.id }
func (p *orderedPlugin) Init() error  { return nil }
func (p *orderedPlugin) Start() error { return nil }
func (p *orderedPlugin) Stop() error  { return nil }
func (p *orderedPlugin) HandleHook(hook model.Hook, req *model.Request, res *model.Response) error {
	*p.order = append(*p.order, p.id)
	return nil
}

func TestDisallowedHookIsNoOp(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "gated"}
	e.Register(p, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRequestStart: true})

	e.Dispatch(model.HookOnCacheHit, &model.Request{}, model.NewResponse())
	assert.Equal(t, 0, p.handleCnt)
}

func TestCircuitBreakerDisablesAfterThreeFailures(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "flaky", hookErr: errors.New("fail")}
	e.Register(p, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRequestStart: true})

	for i := 0; i < 3; i++ {
		e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	}
	assert.Equal(t, 3, p.handleCnt)

	e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	assert.Equal(t, 3, p.handleCnt, "fourth dispatch should be a no-op once the breaker trips")

	stats, err := e.GetPluginStats("flaky")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Failures)
}

func TestReenableHookClearsBreaker(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "recovering", hookErr: errors.New("fail")}
	e.Register(p, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRequestStart: true})

	for i := 0; i < 3; i++ {
		e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	}
	require.NoError(t, e.ReenableHook("recovering", model.HookOnRequestStart))

	p.hookErr = nil
	e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	assert.Equal(t, 4, p.handleCnt)
}

func TestPluginPanicIsIsolated(t *testing.T) {
	e := New()
	e.Register(&panicPlugin{id: "panics"}, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRequestStart: true})
	assert.NotPanics(t, func() {
		e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	})
}

type panicPlugin struct{ id string }

func (p *panicPlugin) ID() string   { return p.id }
func (p *panicPlugin) Init() error  { return nil }
func (p *panicPlugin) Start() error { return nil }
func (p *panicPlugin) Stop() error  { return nil }
func (p *panicPlugin) HandleHook(hook model.Hook, req *model.Request, res *model.Response) error {
	panic("boom")
}

func TestUnregisterRemovesFromIndices(t *testing.T) {
	e := New()
	p := &fakePlugin{id: "gone"}
	e.Register(p, model.PluginTypeOther, 0, map[model.Hook]bool{model.HookOnRequestStart: true})
	require.NoError(t, e.Unregister("gone"))

	_, err := e.GetPluginStats("gone")
	assert.ErrorIs(t, err, ErrNotFound)

	e.Dispatch(model.HookOnRequestStart, &model.Request{}, model.NewResponse())
	assert.Equal(t, 0, p.handleCnt)
}
