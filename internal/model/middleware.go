package model

import "sync/atomic"

// Priority is the MiddlewareChain's bucket ordering: critical runs
// before high, before normal, before low, before lowest.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityLowest
)

// Next is the continuation a middleware invokes to advance the chain.
// Calling it with a non-nil error activates the error-handling path.
type Next func(err error)

// MiddlewareFunc is the 3-argument middleware shape; MiddlewareErrorFunc is
// the 4-argument error-handling variant.
type MiddlewareFunc func(req *Request, res *Response, next Next)
type MiddlewareErrorFunc func(err error, req *Request, res *Response, next Next)

// MiddlewareStats accumulates per-middleware invocation counters.
type MiddlewareStats struct {
	Invocations  int64
	CumulativeNS int64
	p95WindowNS  []int64
	windowIdx    int
}

// RecordLatency counts one invocation, adds its latency to the cumulative
// total, and stores it in a rolling window of the last 256 latencies. No
// p95 figure is computed from that window.
func (s *MiddlewareStats) RecordLatency(ns int64) {
	atomic.AddInt64(&s.Invocations, 1)
	atomic.AddInt64(&s.CumulativeNS, ns)
	const windowSize = 256
	if s.p95WindowNS == nil {
		s.p95WindowNS = make([]int64, windowSize)
	}
	s.p95WindowNS[s.windowIdx%windowSize] = ns
	s.windowIdx++
}

// MiddlewareEntry is one registered middleware.
type MiddlewareEntry struct {
	ID           string
	Handler      MiddlewareFunc
	ErrorHandler MiddlewareErrorFunc
	Priority     Priority
	Enabled      atomic.Bool
	PathScope    string
	Name         string
	Description  string
	Stats        MiddlewareStats
	Deadline     int64 // optional hard deadline in nanoseconds; 0 disables
	insertOrder  int
}
