package plugin

import (
	"fmt"
	"sync"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/util/log"
)

// factories maps a plugin id to its constructor. Embedding programs
// register factories before the application is assembled; the plugins
// configuration group then selects which of them actually load.
var (
	factoryMu sync.RWMutex
	factories = map[string]func() model.PluginImpl{}
)

// RegisterFactory binds a plugin id to a constructor so the plugins
// configuration group can instantiate it by name. Re-registering an id
// replaces the previous constructor.
func RegisterFactory(id string, fn func() model.PluginImpl) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[id] = fn
}

func factoryFor(id string) (func() model.PluginImpl, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	fn, ok := factories[id]
	return fn, ok
}

// LoadConfigured instantiates and registers every plugin declared in the
// plugins configuration group. Hook permissions come from the declaration's
// allowedHooks list, overridden by a pluginPermissions entry when present.
// A declaration naming an unknown factory is skipped with a warning; the
// first registration failure aborts the load.
func LoadConfigured(e *Engine, cfg *config.PluginsConfig) error {
	if cfg == nil {
		return nil
	}
	for _, reg := range cfg.Register {
		fn, ok := factoryFor(reg.ID)
		if !ok {
			log.Warn("no factory registered for configured plugin", log.Pairs{"plugin": reg.ID})
			continue
		}
		hooks := reg.AllowedHooks
		if perms, ok := cfg.PluginPermissions[reg.ID]; ok {
			hooks = perms
		}
		if _, err := e.Register(fn(), model.PluginType(reg.Type), reg.Priority, hookSet(hooks)); err != nil {
			return fmt.Errorf("plugin: load %s: %w", reg.ID, err)
		}
	}
	return nil
}

func hookSet(names []string) map[model.Hook]bool {
	set := make(map[model.Hook]bool, len(names))
	for _, n := range names {
		set[model.Hook(n)] = true
	}
	return set
}
