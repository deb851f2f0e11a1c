package network

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/util/log"
	"github.com/nehonix/xypriss/internal/util/metrics"
)

// LoadBalancing selects an upstream-selection algorithm.
type LoadBalancing string

const (
	LBRoundRobin         LoadBalancing = "round-robin"
	LBWeightedRoundRobin LoadBalancing = "weighted-round-robin"
	LBIPHash             LoadBalancing = "ip-hash"
	LBLeastConnections   LoadBalancing = "least-connections"
	LBLeastResponseTime  LoadBalancing = "least-response-time"
)

// ErrNoHealthyUpstream is returned when every configured upstream is
// marked unhealthy. An open circuit breaker does not remove an upstream
// from selection; Forward then returns the breaker's own error.
var ErrNoHealthyUpstream = errors.New("network: no healthy upstream available")

// upstream tracks one reverse-proxy target's health and load state.
type upstream struct {
	url    string
	weight int

	healthy             atomic.Bool
	consecutiveFailures int32
	consecutiveSuccess  int32
	activeConns         int64
	lastLatencyNS       int64

	breaker *gobreaker.CircuitBreaker
}

// Proxy is a multi-upstream weighted load balancer with active health
// checking and an optional per-upstream sony/gobreaker circuit breaker.
type Proxy struct {
	Enabled            bool
	LoadBalancing      LoadBalancing
	HealthCheckPath    string
	HealthCheckVerb    string
	HealthCheckQuery   string
	HealthCheckHeaders map[string]string
	UnhealthyThreshold int
	HealthyThreshold   int
	CircuitBreaker     bool

	mu        sync.Mutex
	upstreams []*upstream
	rrCounter uint64

	client *http.Client

	stopCh chan struct{}
}

// NewProxy builds a Proxy sub-plugin from its configuration group.
func NewProxy(cfg config.ProxyConfig) *Proxy {
	p := &Proxy{
		Enabled:            cfg.Enabled,
		LoadBalancing:      LoadBalancing(cfg.LoadBalancing),
		HealthCheckPath:    cfg.HealthCheckPath,
		HealthCheckVerb:    cfg.HealthCheckVerb,
		HealthCheckQuery:   cfg.HealthCheckQuery,
		HealthCheckHeaders: cfg.HealthCheckHeaders,
		UnhealthyThreshold: cfg.UnhealthyThreshold,
		HealthyThreshold:   cfg.HealthyThreshold,
		CircuitBreaker:     cfg.CircuitBreaker,
		client:             &http.Client{Timeout: 10 * time.Second},
		stopCh:             make(chan struct{}),
	}
	if p.HealthCheckPath == "" {
		p.HealthCheckPath = "/health"
	}
	if p.HealthCheckVerb == "" {
		p.HealthCheckVerb = http.MethodGet
	}
	if p.UnhealthyThreshold <= 0 {
		p.UnhealthyThreshold = 3
	}
	if p.HealthyThreshold <= 0 {
		p.HealthyThreshold = 2
	}
	for _, u := range cfg.Upstreams {
		w := u.Weight
		if w <= 0 {
			w = 1
		}
		up := &upstream{url: u.URL, weight: w}
		up.healthy.Store(true)
		if p.CircuitBreaker {
			up.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        u.URL,
				MaxRequests: 3,
				Interval:    10 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
				},
			})
		}
		p.upstreams = append(p.upstreams, up)
	}
	return p
}

// StartHealthChecks launches a background goroutine that periodically
// probes every upstream's HealthCheckPath, marking it unhealthy after
// UnhealthyThreshold consecutive failures and healthy again after
// HealthyThreshold consecutive successes.
// It returns a stop function.
func (p *Proxy) StartHealthChecks(interval time.Duration) (stop func()) {
	if !p.Enabled || interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.probeAll()
			case <-p.stopCh:
				return
			}
		}
	}()
	return func() {
		select {
		case <-p.stopCh:
		default:
			close(p.stopCh)
		}
	}
}

func (p *Proxy) probeAll() {
	p.mu.Lock()
	ups := make([]*upstream, len(p.upstreams))
	copy(ups, p.upstreams)
	p.mu.Unlock()

	for _, u := range ups {
		ok := p.probe(u)
		if ok {
			u.consecutiveFailures = 0
			u.consecutiveSuccess++
			if !u.healthy.Load() && int(u.consecutiveSuccess) >= p.HealthyThreshold {
				u.healthy.Store(true)
				log.Info("upstream marked healthy", log.Pairs{"upstream": u.url})
			}
		} else {
			u.consecutiveSuccess = 0
			u.consecutiveFailures++
			if u.healthy.Load() && int(u.consecutiveFailures) >= p.UnhealthyThreshold {
				u.healthy.Store(false)
				log.Warn("upstream marked unhealthy", log.Pairs{"upstream": u.url})
			}
		}
	}
}

func (p *Proxy) probe(u *upstream) bool {
	target := u.url + p.HealthCheckPath
	if p.HealthCheckQuery != "" {
		target += "?" + p.HealthCheckQuery
	}
	req, err := http.NewRequest(p.HealthCheckVerb, target, nil)
	if err != nil {
		return false
	}
	for k, v := range p.HealthCheckHeaders {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Select picks one healthy upstream per the configured load-balancing
// strategy. remoteAddr is used for ip-hash.
func (p *Proxy) Select(remoteAddr string) (*upstream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := make([]*upstream, 0, len(p.upstreams))
	for _, u := range p.upstreams {
		if u.healthy.Load() {
			healthy = append(healthy, u)
		}
	}
	if len(healthy) == 0 {
		return nil, ErrNoHealthyUpstream
	}

	switch p.LoadBalancing {
	case LBWeightedRoundRobin:
		return p.selectWeighted(healthy), nil
	case LBIPHash:
		return healthy[ipHash(remoteAddr)%uint32(len(healthy))], nil
	case LBLeastConnections:
		best := healthy[0]
		for _, u := range healthy[1:] {
			if atomic.LoadInt64(&u.activeConns) < atomic.LoadInt64(&best.activeConns) {
				best = u
			}
		}
		return best, nil
	case LBLeastResponseTime:
		best := healthy[0]
		for _, u := range healthy[1:] {
			if atomic.LoadInt64(&u.lastLatencyNS) < atomic.LoadInt64(&best.lastLatencyNS) {
				best = u
			}
		}
		return best, nil
	default: // round-robin
		idx := atomic.AddUint64(&p.rrCounter, 1)
		return healthy[int(idx)%len(healthy)], nil
	}
}

func (p *Proxy) selectWeighted(healthy []*upstream) *upstream {
	total := 0
	for _, u := range healthy {
		total += u.weight
	}
	idx := int(atomic.AddUint64(&p.rrCounter, 1)) % total
	for _, u := range healthy {
		if idx < u.weight {
			return u
		}
		idx -= u.weight
	}
	return healthy[0]
}

func ipHash(addr string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return h.Sum32()
}

// Forward proxies req to the selected upstream, recording per-upstream
// latency metrics and, when CircuitBreaker is enabled, running the round
// trip through the upstream's gobreaker.
func (p *Proxy) Forward(ctx context.Context, remoteAddr string, req *http.Request) (*http.Response, error) {
	u, err := p.Select(remoteAddr)
	if err != nil {
		return nil, err
	}

	atomic.AddInt64(&u.activeConns, 1)
	defer atomic.AddInt64(&u.activeConns, -1)

	start := time.Now()
	do := func() (*http.Response, error) {
		outReq := req.Clone(ctx)
		outReq.URL.Scheme, outReq.URL.Host = splitUpstream(u.url)
		outReq.Host = outReq.URL.Host
		return p.client.Do(outReq)
	}

	var resp *http.Response
	if u.breaker != nil {
		res, err := u.breaker.Execute(func() (interface{}, error) { return do() })
		if err != nil {
			metrics.ProxyUpstreamLatency.WithLabelValues(u.url, "error").Observe(time.Since(start).Seconds())
			return nil, err
		}
		resp = res.(*http.Response)
	} else {
		resp, err = do()
		if err != nil {
			metrics.ProxyUpstreamLatency.WithLabelValues(u.url, "error").Observe(time.Since(start).Seconds())
			return nil, err
		}
	}

	elapsed := time.Since(start)
	atomic.StoreInt64(&u.lastLatencyNS, elapsed.Nanoseconds())
	metrics.ProxyUpstreamLatency.WithLabelValues(u.url, statusClass(resp.StatusCode)).Observe(elapsed.Seconds())
	return resp, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// splitUpstream naively splits a configured "scheme://host" upstream URL
// into its scheme and host parts.
func splitUpstream(raw string) (scheme, host string) {
	for i := 0; i+2 < len(raw); i++ {
		if raw[i] == ':' && raw[i+1] == '/' && raw[i+2] == '/' {
			return raw[:i], raw[i+3:]
		}
	}
	return "http", raw
}
