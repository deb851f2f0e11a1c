// Package app wires RouteTable, MiddlewareChain, SecureCache, PluginEngine,
// ClusterSupervisor, NetworkPlugins, and ConsoleInterceptor into one
// Application assembled from independently-testable packages; a process
// runs exactly one Application.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nehonix/xypriss/internal/cache"
	"github.com/nehonix/xypriss/internal/classify"
	"github.com/nehonix/xypriss/internal/cluster"
	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/console"
	"github.com/nehonix/xypriss/internal/crypto"
	"github.com/nehonix/xypriss/internal/dispatch"
	"github.com/nehonix/xypriss/internal/middleware"
	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/network"
	"github.com/nehonix/xypriss/internal/plugin"
	"github.com/nehonix/xypriss/internal/portmanager"
	"github.com/nehonix/xypriss/internal/reqmgmt"
	"github.com/nehonix/xypriss/internal/routing"
	"github.com/nehonix/xypriss/internal/util/log"
)

// Application owns the full XyPriss runtime for one process: exactly one
// RouteTable, MiddlewareChain, SecureCache, PluginEngine, and (when
// clustering is enabled) ClusterSupervisor.
type Application struct {
	cfg *config.XyPrissConfig

	Routes      *routing.RouteTable
	Middleware  *middleware.Chain
	Cache       *cache.SecureCache
	Plugins     *plugin.Engine
	Classifier  *classify.Classifier
	Network     *network.Plugins
	Console     *console.Interceptor
	Cluster     *cluster.Supervisor
	Ports       *portmanager.Manager
	Dispatcher  *dispatch.Dispatcher
	Concurrency *reqmgmt.Controller

	server    *http.Server
	startedAt time.Time
	ready     atomic.Bool

	consoleStop     func()
	proxyHealthStop func()
}

// New assembles an Application from cfg without binding any listener or
// starting the cluster; call Start to bring it up. The cache's memory-tier
// expiry sweep does start here, as does the rate limiter's idle-entry sweep
// when rate limiting is enabled and not distributed, as part of
// constructing those components.
func New(cfg *config.XyPrissConfig) (*Application, error) {
	provider := crypto.NewStdProvider()
	masterKey := []byte(os.Getenv(cfg.Cache.MasterKeyEnvVar))
	if len(masterKey) == 0 {
		masterKey = []byte("xypriss-insecure-default-master-key")
		log.Warn("no master key environment variable set; using an insecure default", log.Pairs{"envVar": cfg.Cache.MasterKeyEnvVar})
	}

	secureCache, err := cache.New(cfg.Cache, provider, masterKey)
	if err != nil {
		return nil, fmt.Errorf("app: cache init: %w", err)
	}

	rateLimitStore := rateLimitAdapter{cache: secureCache}
	netPlugins := network.New(cfg.Network, rateLimitStore)

	a := &Application{
		cfg:        cfg,
		Routes:     routing.New(),
		Middleware: middleware.New(),
		Cache:      secureCache,
		Plugins:    plugin.New(),
		Classifier: classify.New(),
		Network:    netPlugins,
		Console:    console.New(cfg.Logging.ConsoleInterception, provider, masterKey),
		Ports:      portmanager.New(),
	}
	if cfg.RequestManagement != nil {
		a.Concurrency = reqmgmt.NewController(cfg.RequestManagement.Concurrency)
	}

	if cfg.Cluster.Enabled {
		a.Cluster = cluster.New(cfg.Server.Host, cfg.Server.Port, reExecWorkerFactory)
		a.Cluster.OnCriticalIssue = func(workerID, reason string) {
			log.Error("critical_issue", log.Pairs{"worker": workerID, "reason": reason})
			a.Plugins.Dispatch(model.HookOnCriticalIssue, lifecycleRequest(), model.NewResponse())
		}
	}

	a.registerBuiltinMiddleware()
	a.Dispatcher = dispatch.New(a.Routes, a.Middleware, a.Classifier, a.Cache, a.Plugins)
	a.registerAdminRoutes()

	if err := plugin.LoadConfigured(a.Plugins, cfg.Plugins); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return a, nil
}

// rateLimitAdapter satisfies network.RateLimitCounterStore without the
// network package importing cache directly (mirrors dispatch.PluginDispatcher's
// interface-boundary idiom).
type rateLimitAdapter struct{ cache *cache.SecureCache }

func (r rateLimitAdapter) IncrCounter(ctx context.Context, key string, window time.Duration) (int64, int64, error) {
	return r.cache.IncrCounter(ctx, key, window)
}

func (a *Application) registerBuiltinMiddleware() {
	middleware.RegisterDefaults(a.Middleware)

	sec := *a.cfg.Security
	a.Middleware.Register(middleware.SecurityHeaders(sec), middleware.RegisterOptions{
		ID: "xypriss.security-headers", Priority: model.PriorityCritical, Name: "security-headers",
	})
	a.Middleware.Register(middleware.CORS(sec), middleware.RegisterOptions{
		ID: "xypriss.cors", Priority: model.PriorityHigh, Name: "cors",
	})
	a.Middleware.Register(middleware.BruteForce(sec), middleware.RegisterOptions{
		ID: "xypriss.brute-force", Priority: model.PriorityHigh, Name: "brute-force",
	})
	if sec.Authentication.JWT.Secret != "" {
		a.Middleware.Register(middleware.JWTAuth(sec.Authentication.JWT), middleware.RegisterOptions{
			ID: "xypriss.jwt", Priority: model.PriorityNormal, Name: "jwt-auth", PathScope: "/api",
		})
	}
}

// Start connects the cache's distributed tier, starts the console
// interceptor and proxy health checks, brings up the cluster (if enabled),
// and finally binds the listener, in that order, so the server never
// accepts traffic before every component reports ready.
func (a *Application) Start(ctx context.Context) error {
	a.startedAt = time.Now()

	if err := a.Cache.Connect(ctx); err != nil {
		log.Warn("cache distributed tier connect failed, continuing degraded", log.Pairs{"error": err.Error()})
	}

	if a.cfg.Logging.ConsoleInterception.Enabled {
		if a.cfg.Logging.ConsoleInterception.TracingEnabled {
			a.Console.RegisterTraceHook(func(console.Capture) {
				a.Plugins.Dispatch(model.HookOnConsoleLog, lifecycleRequest(), model.NewResponse())
			})
		}
		stop, err := a.Console.Start()
		if err != nil {
			return fmt.Errorf("app: console interceptor: %w", err)
		}
		a.consoleStop = stop
	}

	if a.Network.Proxy != nil && a.Network.Proxy.Enabled {
		a.proxyHealthStop = a.Network.Proxy.StartHealthChecks(10 * time.Second)
	}

	if a.Cluster != nil {
		if err := a.Cluster.StartCluster(a.cfg.Cluster.Config.Workers); err != nil {
			return fmt.Errorf("app: cluster start: %w", err)
		}
	}

	a.refreshAdminCache(ctx)
	go a.refreshAdminCacheLoop(ctx)

	if a.cfg.Metrics.ListenPort > 0 {
		go a.serveMetrics()
	}

	boundPort := a.cfg.Server.Port
	if aps := a.cfg.Server.AutoPortSwitch; aps != nil && aps.Enabled {
		p, err := a.Ports.AcquirePort(
			a.cfg.Server.Host, a.cfg.Server.Port,
			portmanager.Strategy(aps.Strategy), aps.MaxAttempts,
			[2]int{aps.PortRangeStart, aps.PortRangeEnd}, aps.PredefinedPorts,
		)
		if err != nil {
			return fmt.Errorf("app: acquire port: %w", err)
		}
		if p != a.cfg.Server.Port {
			log.Warn("listen port unavailable, switched", log.Pairs{"requested": a.cfg.Server.Port, "bound": p})
		}
		boundPort = p
	}

	addr := net.JoinHostPort(a.cfg.Server.Host, fmt.Sprintf("%d", boundPort))
	var handler http.Handler = a.Dispatcher
	if rm := a.cfg.RequestManagement; rm != nil {
		if rm.Timeout.Enabled {
			handler = reqmgmt.NewDeadline(rm.Timeout).Wrap(handler)
		}
		handler = reqmgmt.NewPayloadGuard(rm.Payload, *a.cfg.Server).Wrap(handler)
		if a.Concurrency != nil {
			handler = a.Concurrency.Wrap(handler)
		}
	}
	handler = newNetworkFilterHandler(a.Network, handler)
	a.server = &http.Server{Addr: addr, Handler: handler}
	if a.Network.Connection != nil {
		if err := a.Network.Connection.Apply(a.server); err != nil {
			return fmt.Errorf("app: connection tuning: %w", err)
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}

	a.Plugins.Dispatch(model.HookOnServerStart, lifecycleRequest(), model.NewResponse())
	a.ready.Store(true)
	log.Info("server listening", log.Pairs{"addr": addr})
	return a.server.Serve(ln)
}

// Route registers a handler on the RouteTable and announces it to plugins
// subscribed to the route-registration hook.
func (a *Application) Route(method, pattern string, handler model.RouteHandler) *model.Route {
	route := a.Routes.Add(method, pattern, handler)
	a.Plugins.Dispatch(model.HookOnRouteRegister, &model.Request{
		Method: method,
		Path:   pattern,
		Params: map[string]string{},
		Timing: model.Timing{Start: time.Now()},
	}, model.NewResponse())
	return route
}

// Ready reports whether every component has completed initialization and
// the server is prepared to accept traffic.
func (a *Application) Ready() bool { return a.ready.Load() }

// Shutdown stops the console interceptor, cluster, and HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	a.ready.Store(false)
	a.Plugins.Dispatch(model.HookOnServerStop, lifecycleRequest(), model.NewResponse())

	if a.consoleStop != nil {
		a.consoleStop()
	}
	if a.proxyHealthStop != nil {
		a.proxyHealthStop()
	}
	if a.Network.RateLimit != nil {
		a.Network.RateLimit.Stop()
	}
	if a.Cluster != nil {
		a.Cluster.Stop(ctx)
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if err := a.Cache.Disconnect(); err != nil {
		log.Warn("cache disconnect failed", log.Pairs{"error": err.Error()})
	}
	return nil
}
