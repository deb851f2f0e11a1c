package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nehonix/xypriss/internal/cache"
	"github.com/nehonix/xypriss/internal/classify"
	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/util/log"
)

// serveMetrics runs a standalone Prometheus /metrics listener on the
// "metrics" configuration group's address, separate from the main
// dispatch server so scraping never competes with application traffic.
func (a *Application) serveMetrics() {
	addr := fmt.Sprintf("%s:%d", a.cfg.Metrics.ListenAddress, a.cfg.Metrics.ListenPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", log.Pairs{"addr": addr})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics listener stopped", log.Pairs{"error": err.Error()})
	}
}

// adminCacheTTL is the fixed TTL the cache admin endpoints are served at.
const adminCacheTTL = time.Hour

var adminRoutes = []string{"/XyPriss/health", "/XyPriss/status", "/XyPriss/ping"}

// registerAdminRoutes mounts the three cache admin endpoints as
// ordinary routes, and additionally declares them ultra-fast-eligible so
// the Dispatcher serves them straight out of SecureCache once populated by
// refreshAdminCache.
func (a *Application) registerAdminRoutes() {
	a.Route("GET", "/XyPriss/health", model.WrapHTTPHandler(a.handleHealth))
	a.Route("GET", "/XyPriss/status", model.WrapHTTPHandler(a.handleStatus))
	a.Route("GET", "/XyPriss/ping", model.WrapHTTPHandler(a.handlePing))

	for _, p := range adminRoutes {
		a.Classifier.RegisterUltraFastTemplate(classify.NewUltraFastTemplate(p))
	}
}

// refreshAdminCache recomputes each admin endpoint's JSON body and stores it
// under its ultra-fast cache key so the Dispatcher's ultra-fast path can
// serve it without re-running the handler.
func (a *Application) refreshAdminCache(ctx context.Context) {
	for _, p := range adminRoutes {
		var body []byte
		switch p {
		case "/XyPriss/health":
			body, _ = json.Marshal(a.healthBody())
		case "/XyPriss/status":
			body, _ = json.Marshal(a.statusBody())
		case "/XyPriss/ping":
			body, _ = json.Marshal(pingBody())
		}
		doc := &model.HTTPDocument{
			Status: http.StatusOK,
			Header: map[string][]string{"Content-Type": {"application/json"}},
			Body:   body,
		}
		encoded, err := doc.MarshalMsg(nil)
		if err != nil {
			log.Error("failed to encode admin cache document", log.Pairs{"path": p, "error": err.Error()})
			continue
		}
		key := classify.UltraFastCacheKey("GET", p)
		_ = a.Cache.Set(ctx, key, encoded, cache.SetOptions{TTL: adminCacheTTL})
	}
}

// refreshAdminCacheLoop keeps the ultra-fast admin snapshots from going
// stale for longer than their TTL.
func (a *Application) refreshAdminCacheLoop(ctx context.Context) {
	ticker := time.NewTicker(adminCacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshAdminCache(ctx)
		}
	}
}

func (a *Application) healthBody() map[string]interface{} {
	return map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().UTC(),
		"service":     config.System.Name,
		"version":     config.System.Version,
		"environment": config.System.Environment,
		"uptime":      time.Since(a.startedAt).Seconds(),
	}
}

func (a *Application) statusBody() map[string]interface{} {
	stats := a.Cache.GetStats()
	health, reason := a.Cache.GetHealth()
	body := a.healthBody()
	body["cache"] = map[string]interface{}{
		"health":       health,
		"reason":       reason,
		"memoryHits":   stats.MemoryHits,
		"memoryMisses": stats.MemoryMisses,
		"totalOps":     stats.TotalOps,
	}
	body["plugins"] = len(a.Plugins.List())
	if a.Cluster != nil {
		ch := a.Cluster.GetClusterHealth()
		body["cluster"] = map[string]interface{}{
			"totalWorkers":     ch.TotalWorkers,
			"healthyWorkers":   ch.HealthyWorkers,
			"unhealthyWorkers": ch.UnhealthyWorkers,
		}
	}
	return body
}

func pingBody() map[string]interface{} {
	return map[string]interface{}{"pong": true, "timestamp": time.Now().UTC()}
}

func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.healthBody())
}

func (a *Application) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.statusBody())
}

func (a *Application) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, pingBody())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// lifecycleRequest builds a minimal Request for plugin hooks fired outside
// any real HTTP request (onServerStart/onServerStop), without routing
// through model.NewRequest's *http.Request field extraction.
func lifecycleRequest() *model.Request {
	return &model.Request{
		Method: "SYSTEM",
		Path:   "/",
		Params: map[string]string{},
		Timing: model.Timing{Start: time.Now()},
	}
}
