package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// StatsSnapshot is the read-only view returned by SecureCache.GetStats.
type StatsSnapshot struct {
	MemoryHits    int64
	MemoryMisses  int64
	DistribHits   int64
	DistribMisses int64
	TotalOps      int64
	P50Latency    time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration

	// PendingWrites counts distributed-tier writes dispatched
	// asynchronously (hybrid strategy) that have not yet completed.
	// TotalOps and the hit/miss counters reflect only acknowledged
	// operations; in-flight async writes are surfaced separately here so
	// callers can distinguish "done" from "in flight" rather than having
	// them silently folded into one total.
	PendingWrites int64
}

// Stats accumulates SecureCache operation counters and a bounded rolling
// latency window, mirroring the p95-rolling-window idiom used by
// MiddlewareChain stats and PluginEngine stats.
type Stats struct {
	memoryHits    int64
	memoryMisses  int64
	distribHits   int64
	distribMisses int64

	PendingWrites atomic.Int64

	mu     sync.Mutex
	window []time.Duration
	idx    int
}

const statsWindowSize = 512

// NewStats returns an empty Stats accumulator.
func NewStats() *Stats {
	return &Stats{window: make([]time.Duration, 0, statsWindowSize)}
}

// RecordOp folds one operation's outcome and latency into the accumulator.
func (s *Stats) RecordOp(tier, op string, hit bool, d time.Duration) {
	switch tier {
	case "memory":
		if hit {
			atomic.AddInt64(&s.memoryHits, 1)
		} else {
			atomic.AddInt64(&s.memoryMisses, 1)
		}
	case "distributed":
		if hit {
			atomic.AddInt64(&s.distribHits, 1)
		} else {
			atomic.AddInt64(&s.distribMisses, 1)
		}
	}

	s.mu.Lock()
	if len(s.window) < statsWindowSize {
		s.window = append(s.window, d)
	} else {
		s.window[s.idx%statsWindowSize] = d
	}
	s.idx++
	s.mu.Unlock()
}

// Snapshot returns a consistent read of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	sorted := append([]time.Duration{}, s.window...)
	s.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pctl := func(p float64) time.Duration {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}

	mh := atomic.LoadInt64(&s.memoryHits)
	mm := atomic.LoadInt64(&s.memoryMisses)
	dh := atomic.LoadInt64(&s.distribHits)
	dm := atomic.LoadInt64(&s.distribMisses)

	return StatsSnapshot{
		MemoryHits:    mh,
		MemoryMisses:  mm,
		DistribHits:   dh,
		DistribMisses: dm,
		TotalOps:      mh + mm + dh + dm,
		P50Latency:    pctl(0.50),
		P95Latency:    pctl(0.95),
		P99Latency:    pctl(0.99),
		PendingWrites: s.PendingWrites.Load(),
	}
}
