// Package plugin implements PluginEngine: a typed plugin
// registry with a register→validate→store→init→start lifecycle, hook fan-
// out in priority order, per-hook allowedHooks gating, and a 3-strikes
// circuit breaker isolating a misbehaving plugin per hook.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/util/log"
	"github.com/nehonix/xypriss/internal/util/metrics"
)

// ErrDuplicateID is returned by Register when a plugin id is already taken.
var ErrDuplicateID = errors.New("plugin: duplicate id")

// ErrNotFound is returned by Unregister/GetPluginStats for an unknown id.
var ErrNotFound = errors.New("plugin: not found")

// maxConsecutiveFailures is the circuit-breaker threshold.
const maxConsecutiveFailures = 3

// defaultLifecycleTimeout bounds Init/Start/Stop.
const defaultLifecycleTimeout = 5 * time.Second

// Engine is the PluginEngine orchestrator.
type Engine struct {
	mu     sync.RWMutex
	byID   map[string]*model.Plugin
	byType map[model.PluginType][]*model.Plugin
	byHook map[model.Hook][]*model.Plugin

	// byHookDenied holds plugins whose allowedHooks policy names a hook
	// with allowed=false; a dispatch of that hook is a counted no-op for
	// them.
	byHookDenied map[model.Hook][]*model.Plugin

	lifecycleTimeout time.Duration
}

// New returns an empty Engine with the default 5s lifecycle timeout.
func New() *Engine {
	return &Engine{
		byID:             make(map[string]*model.Plugin),
		byType:           make(map[model.PluginType][]*model.Plugin),
		byHook:           make(map[model.Hook][]*model.Plugin),
		byHookDenied:     make(map[model.Hook][]*model.Plugin),
		lifecycleTimeout: defaultLifecycleTimeout,
	}
}

// Register validates, stores, initializes, and starts a plugin.
// A plugin exceeding the lifecycle timeout during Init/Start enters the
// failed state and Register returns the timeout error.
func (e *Engine) Register(impl model.PluginImpl, typ model.PluginType, priority int, allowedHooks map[model.Hook]bool) (*model.Plugin, error) {
	id := impl.ID()
	if id == "" {
		return nil, fmt.Errorf("plugin: empty id")
	}

	e.mu.Lock()
	if _, exists := e.byID[id]; exists {
		e.mu.Unlock()
		return nil, ErrDuplicateID
	}
	p := &model.Plugin{
		ID:                  id,
		Type:                typ,
		Priority:            priority,
		AllowedHooks:        allowedHooks,
		ConsecutiveFailures: make(map[model.Hook]int),
		DisabledHooks:       make(map[model.Hook]bool),
		Impl:                impl,
	}
	p.SetState(model.LifecycleRegistered)
	e.byID[id] = p
	e.byType[typ] = append(e.byType[typ], p)
	for hook, allowed := range allowedHooks {
		if allowed {
			e.byHook[hook] = append(e.byHook[hook], p)
			e.sortHookLocked(hook)
		} else {
			e.byHookDenied[hook] = append(e.byHookDenied[hook], p)
		}
	}
	e.mu.Unlock()

	if err := e.runWithTimeout(p, impl.Init); err != nil {
		p.SetState(model.LifecycleFailed)
		return p, fmt.Errorf("plugin %s: init: %w", id, err)
	}
	p.SetState(model.LifecycleInitialized)

	if err := e.runWithTimeout(p, impl.Start); err != nil {
		p.SetState(model.LifecycleFailed)
		return p, fmt.Errorf("plugin %s: start: %w", id, err)
	}
	p.SetState(model.LifecycleRunning)
	return p, nil
}

func (e *Engine) sortHookLocked(hook model.Hook) {
	list := e.byHook[hook]
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	e.byHook[hook] = list
}

func (e *Engine) runWithTimeout(p *model.Plugin, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(e.lifecycleTimeout):
		return fmt.Errorf("exceeded lifecycle timeout %s", e.lifecycleTimeout)
	}
}

// Unregister stops and removes a plugin.
func (e *Engine) Unregister(id string) error {
	e.mu.Lock()
	p, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}
	p.SetState(model.LifecycleStopping)
	e.mu.Unlock()

	_ = e.runWithTimeout(p, p.Impl.Stop)

	e.mu.Lock()
	defer e.mu.Unlock()
	p.SetState(model.LifecycleStopped)
	delete(e.byID, id)
	e.byType[p.Type] = removePlugin(e.byType[p.Type], id)
	for hook := range e.byHook {
		e.byHook[hook] = removePlugin(e.byHook[hook], id)
	}
	for hook := range e.byHookDenied {
		e.byHookDenied[hook] = removePlugin(e.byHookDenied[hook], id)
	}
	return nil
}

func removePlugin(list []*model.Plugin, id string) []*model.Plugin {
	out := list[:0]
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// Dispatch invokes every plugin subscribed to hook, in priority order,
// gated by allowedHooks and the per-hook circuit breaker. A plugin's
// panic or error is caught, logged, counted, and
// never propagates to the caller — it implements dispatch.PluginDispatcher.
func (e *Engine) Dispatch(hook model.Hook, req *model.Request, res *model.Response) {
	e.mu.RLock()
	plugins := make([]*model.Plugin, len(e.byHook[hook]))
	copy(plugins, e.byHook[hook])
	denied := make([]*model.Plugin, len(e.byHookDenied[hook]))
	copy(denied, e.byHookDenied[hook])
	e.mu.RUnlock()

	for _, p := range plugins {
		e.invokeHook(p, hook, req, res)
	}
	if len(denied) > 0 {
		e.mu.Lock()
		for _, p := range denied {
			p.Stats.DeniedInvocations++
		}
		e.mu.Unlock()
	}
}

func (e *Engine) invokeHook(p *model.Plugin, hook model.Hook, req *model.Request, res *model.Response) {
	e.mu.RLock()
	disabled := p.DisabledHooks[hook]
	e.mu.RUnlock()
	if disabled || p.GetState() == model.LifecycleFailed {
		return
	}

	start := time.Now()
	err := e.safeInvoke(p, hook, req, res)
	elapsed := time.Since(start)

	p.Stats.Invocations++
	p.Stats.CumulativeNS += elapsed.Nanoseconds()
	metrics.PluginHookLatency.WithLabelValues(p.ID, string(hook)).Observe(elapsed.Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		p.Stats.Failures++
		p.Stats.LastError = err.Error()
		metrics.PluginFailures.WithLabelValues(p.ID, string(hook)).Inc()
		log.Warn("plugin hook failed", log.Pairs{"plugin": p.ID, "hook": string(hook), "error": err.Error()})

		p.ConsecutiveFailures[hook]++
		if p.ConsecutiveFailures[hook] >= maxConsecutiveFailures {
			p.DisabledHooks[hook] = true
			log.Warn("plugin auto-disabled for hook after consecutive failures", log.Pairs{"plugin": p.ID, "hook": string(hook)})
		}
		return
	}
	p.ConsecutiveFailures[hook] = 0
}

func (e *Engine) safeInvoke(p *model.Plugin, hook model.Hook, req *model.Request, res *model.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Impl.HandleHook(hook, req, res)
}

// ReenableHook clears a hook's circuit-breaker state, used when a plugin is
// re-initialized.
func (e *Engine) ReenableHook(id string, hook model.Hook) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(p.DisabledHooks, hook)
	p.ConsecutiveFailures[hook] = 0
	return nil
}

// GetPluginStats returns a snapshot of one plugin's stats.
func (e *Engine) GetPluginStats(id string) (model.PluginStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.byID[id]
	if !ok {
		return model.PluginStats{}, ErrNotFound
	}
	return p.Stats, nil
}

// List returns all registered plugins.
func (e *Engine) List() []*model.Plugin {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.Plugin, 0, len(e.byID))
	for _, p := range e.byID {
		out = append(out, p)
	}
	return out
}

// ByType returns the plugins registered under a given type.
func (e *Engine) ByType(typ model.PluginType) []*model.Plugin {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.Plugin, len(e.byType[typ]))
	copy(out, e.byType[typ])
	return out
}
