// Package network implements NetworkPlugins: four
// independently-enabled sub-plugins — Connection, Compression, RateLimit,
// and Proxy — that pre- and post-filter requests around the core dispatch
// pipeline.
package network

import (
	"github.com/nehonix/xypriss/internal/config"
)

// Plugins bundles the four NetworkPlugins sub-components behind their
// individual Enabled flags.
type Plugins struct {
	Connection  *Connection
	Compression *Compression
	RateLimit   *RateLimit
	Proxy       *Proxy
}

// New builds every sub-plugin from the "network" configuration group.
// A sub-plugin with Enabled=false is still constructed (so config can be
// flipped at runtime) but its Apply/filter methods become no-ops.
func New(cfg *config.NetworkConfig, rateLimitCache RateLimitCounterStore) *Plugins {
	return &Plugins{
		Connection:  NewConnection(cfg.Connection),
		Compression: NewCompression(cfg.Compression),
		RateLimit:   NewRateLimit(cfg.RateLimit, rateLimitCache),
		Proxy:       NewProxy(cfg.Proxy),
	}
}
