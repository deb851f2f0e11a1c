package model

import "sync/atomic"

// PluginType categorizes a Plugin for the PluginEngine's by-type index.
type PluginType string

const (
	PluginTypeSecurity    PluginType = "security"
	PluginTypePerformance PluginType = "performance"
	PluginTypeCache       PluginType = "cache"
	PluginTypeNetwork     PluginType = "network"
	PluginTypeOther       PluginType = "other"
)

// LifecycleState is the Plugin state machine: registered → initialized
// → running → stopping → stopped; any state may transition to failed.
type LifecycleState string

const (
	LifecycleRegistered  LifecycleState = "registered"
	LifecycleInitialized LifecycleState = "initialized"
	LifecycleRunning     LifecycleState = "running"
	LifecycleStopping    LifecycleState = "stopping"
	LifecycleStopped     LifecycleState = "stopped"
	LifecycleFailed      LifecycleState = "failed"
)

// Hook names the PluginEngine dispatches in priority order.
type Hook string

const (
	HookOnServerStart   Hook = "onServerStart"
	HookOnServerStop    Hook = "onServerStop"
	HookOnRequestStart  Hook = "onRequestStart"
	HookOnRequestEnd    Hook = "onRequestEnd"
	HookOnRequestError  Hook = "onRequestError"
	HookOnRouteRegister Hook = "onRouteRegister"
	HookOnCacheHit      Hook = "onCacheHit"
	HookOnCacheMiss     Hook = "onCacheMiss"
	HookOnConsoleLog    Hook = "onConsoleLog"
	HookOnCriticalIssue Hook = "criticalIssue"
)

// PluginStats is exposed via getPluginStats().
type PluginStats struct {
	Invocations  int64
	Failures     int64
	CumulativeNS int64
	LastError    string

	// DeniedInvocations counts hook dispatches that were skipped because
	// the plugin's allowedHooks policy does not include the hook.
	DeniedInvocations int64
}

// Plugin is the typed registry entry owned by PluginEngine.
type Plugin struct {
	ID           string
	Type         PluginType
	Priority     int
	State        atomic.Value // LifecycleState
	Config       map[string]interface{}
	AllowedHooks map[Hook]bool
	Stats        PluginStats

	// consecutiveFailures is keyed per-hook for the 3-strikes circuit
	// breaker; guarded by PluginEngine's registry lock.
	ConsecutiveFailures map[Hook]int
	DisabledHooks       map[Hook]bool

	Impl PluginImpl
}

// PluginImpl is the capability surface a concrete plugin implements.
type PluginImpl interface {
	ID() string
	Init() error
	Start() error
	Stop() error
	HandleHook(hook Hook, req *Request, res *Response) error
}

// GetState returns the plugin's current lifecycle state.
func (p *Plugin) GetState() LifecycleState {
	v, _ := p.State.Load().(LifecycleState)
	if v == "" {
		return LifecycleRegistered
	}
	return v
}

// SetState installs a new lifecycle state.
func (p *Plugin) SetState(s LifecycleState) { p.State.Store(s) }
