package network

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/util/metrics"
)

// RateLimitStrategy selects the counting algorithm.
type RateLimitStrategy string

const (
	StrategyFixedWindow   RateLimitStrategy = "fixed-window"
	StrategySlidingWindow RateLimitStrategy = "sliding-window"
	StrategyTokenBucket   RateLimitStrategy = "token-bucket"
)

// KeyBy selects what a rate-limit bucket is keyed on.
type KeyBy string

const (
	KeyGlobal KeyBy = "global"
	KeyIP     KeyBy = "ip"
	KeyUser   KeyBy = "user"
	KeyRoute  KeyBy = "route"
)

// RateLimitCounterStore is the capability RateLimit needs from SecureCache
// for distributed limiting: an atomic-enough fixed-window increment that
// reports both the new count and the window's reset time, so a denied
// client recovers once the window elapses instead of perpetually renewing
// it. *cache.SecureCache satisfies it via cache.IncrCounter; it is declared
// here (rather than imported) to avoid a network->cache->network cycle,
// matching the Dispatcher's PluginDispatcher interface-boundary idiom.
type RateLimitCounterStore interface {
	IncrCounter(ctx context.Context, key string, window time.Duration) (count int64, resetUnix int64, err error)
}

// Decision is the outcome of one RateLimit.Check call.
type Decision struct {
	Allowed        bool
	Limit          int
	Remaining      int
	ResetUnix      int64
	RetryAfterSecs int
}

// RateLimit enforces request quotas. Fixed/sliding-window
// counters live in SecureCache when Distributed is configured, otherwise
// in a local in-process map; token-bucket always runs locally via
// golang.org/x/time/rate.
type RateLimit struct {
	Enabled      bool
	Strategy     RateLimitStrategy
	Requests     int
	Window       time.Duration
	KeyBy        KeyBy
	Distributed  bool
	HeaderPrefix string

	store RateLimitCounterStore

	mu      sync.Mutex
	local   map[string]*fixedWindowCounter
	buckets map[string]*rate.Limiter

	stopSweep chan struct{}
}

type fixedWindowCounter struct {
	count     int
	resetUnix int64
}

// NewRateLimit builds a RateLimit sub-plugin from its configuration group.
// store may be nil; Distributed limiting degrades to local counting if so.
func NewRateLimit(cfg config.RateLimitConfig, store RateLimitCounterStore) *RateLimit {
	prefix := cfg.HeaderPrefix
	if prefix == "" {
		prefix = "X-RateLimit"
	}
	rl := &RateLimit{
		Enabled:      cfg.Enabled,
		Strategy:     RateLimitStrategy(cfg.Strategy),
		Requests:     cfg.Requests,
		Window:       cfg.Window,
		KeyBy:        KeyBy(cfg.KeyBy),
		Distributed:  cfg.Distributed,
		HeaderPrefix: prefix,
		store:        store,
		local:        make(map[string]*fixedWindowCounter),
		buckets:      make(map[string]*rate.Limiter),
		stopSweep:    make(chan struct{}),
	}
	if rl.Enabled && !rl.Distributed {
		go rl.sweepLoop(60 * time.Second)
	}
	return rl
}

// sweepLoop periodically drops per-key local state for buckets that went
// idle a full window ago, bounding rl.local/rl.buckets for KeyBy=ip/user
// deployments that otherwise accumulate one entry per distinct client
// forever.
func (rl *RateLimit) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rl.sweep()
		case <-rl.stopSweep:
			return
		}
	}
}

func (rl *RateLimit) sweep() {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, c := range rl.local {
		if now.Unix() >= c.resetUnix {
			delete(rl.local, k)
		}
	}
	for k, lim := range rl.buckets {
		if lim.TokensAt(now) >= float64(rl.Requests) {
			delete(rl.buckets, k)
		}
	}
}

// Stop halts the background sweep.
func (rl *RateLimit) Stop() {
	select {
	case <-rl.stopSweep:
	default:
		close(rl.stopSweep)
	}
}

// Key derives the bucket key for req per the configured KeyBy.
func (rl *RateLimit) Key(req *model.Request, routePattern, userID string) string {
	switch rl.KeyBy {
	case KeyIP:
		return "ip:" + req.RemoteAddress
	case KeyUser:
		if userID == "" {
			return "ip:" + req.RemoteAddress
		}
		return "user:" + userID
	case KeyRoute:
		return "route:" + routePattern
	default:
		return "global"
	}
}

// Check evaluates whether one request against key is allowed, and mutates
// internal counters as a side effect: exactly Requests calls within Window
// succeed, and the next call inside the same window is denied.
func (rl *RateLimit) Check(ctx context.Context, key string) Decision {
	if !rl.Enabled {
		return Decision{Allowed: true}
	}
	switch rl.Strategy {
	case StrategyTokenBucket:
		return rl.checkTokenBucket(key)
	default:
		return rl.checkWindow(ctx, key)
	}
}

func (rl *RateLimit) checkTokenBucket(key string) Decision {
	rl.mu.Lock()
	lim, ok := rl.buckets[key]
	if !ok {
		ratePerSec := float64(rl.Requests) / rl.Window.Seconds()
		lim = rate.NewLimiter(rate.Limit(ratePerSec), rl.Requests)
		rl.buckets[key] = lim
	}
	rl.mu.Unlock()

	if lim.Allow() {
		return Decision{Allowed: true, Limit: rl.Requests, Remaining: int(lim.Tokens())}
	}
	metrics.RateLimitRejections.WithLabelValues(string(rl.KeyBy)).Inc()
	return Decision{Allowed: false, Limit: rl.Requests, RetryAfterSecs: 1}
}

// checkWindow implements both fixed-window and sliding-window as a fixed
// window re-anchored per key, which preserves the exactly-Requests-per-
// Window boundary without keeping a rolling log per request.
func (rl *RateLimit) checkWindow(ctx context.Context, key string) Decision {
	if rl.Distributed && rl.store != nil {
		return rl.checkWindowDistributed(ctx, key)
	}
	return rl.checkWindowLocal(key)
}

func (rl *RateLimit) checkWindowLocal(key string) Decision {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.local[key]
	if !ok || now.Unix() >= c.resetUnix {
		c = &fixedWindowCounter{count: 0, resetUnix: now.Add(rl.Window).Unix()}
		rl.local[key] = c
	}
	c.count++
	allowed := c.count <= rl.Requests
	remaining := rl.Requests - c.count
	if remaining < 0 {
		remaining = 0
	}
	if !allowed {
		metrics.RateLimitRejections.WithLabelValues(string(rl.KeyBy)).Inc()
	}
	return Decision{
		Allowed:        allowed,
		Limit:          rl.Requests,
		Remaining:      remaining,
		ResetUnix:      c.resetUnix,
		RetryAfterSecs: int(c.resetUnix - now.Unix()),
	}
}

func (rl *RateLimit) checkWindowDistributed(ctx context.Context, key string) Decision {
	count, resetUnix, err := rl.store.IncrCounter(ctx, "ratelimit:"+key, rl.Window)
	if err != nil {
		// Store failure must not block traffic; fall back to local counting.
		return rl.checkWindowLocal(key)
	}
	allowed := count <= int64(rl.Requests)
	remaining := rl.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := int(resetUnix - time.Now().Unix())
	if retryAfter < 0 {
		retryAfter = 0
	}
	if !allowed {
		metrics.RateLimitRejections.WithLabelValues(string(rl.KeyBy)).Inc()
	}
	return Decision{Allowed: allowed, Limit: rl.Requests, Remaining: remaining, ResetUnix: resetUnix, RetryAfterSecs: retryAfter}
}

// WriteHeaders sets the X-RateLimit-* (prefix-configurable) headers and, on
// rejection, Retry-After.
func (rl *RateLimit) WriteHeaders(res *model.Response, d Decision) {
	res.Header.Set(rl.HeaderPrefix+"-Limit", strconv.Itoa(d.Limit))
	res.Header.Set(rl.HeaderPrefix+"-Remaining", strconv.Itoa(d.Remaining))
	res.Header.Set(rl.HeaderPrefix+"-Reset", strconv.FormatInt(d.ResetUnix, 10))
	if !d.Allowed {
		res.Header.Set("Retry-After", strconv.Itoa(d.RetryAfterSecs))
	}
}

// Reject writes the 429 body.
func Reject(res *model.Response) {
	res.WriteHeader(429)
	res.Header.Set("Content-Type", "application/json")
	body := fmt.Sprintf(`{"error":"rate limit exceeded","code":"RATE_LIMITED"}`)
	_, _ = res.Write([]byte(body))
}
