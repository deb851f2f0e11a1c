// Package middleware implements MiddlewareChain: a priority-ordered,
// registrable middleware chain with per-entry enable/disable, path
// scoping, and stats.
package middleware

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/util/log"
	"github.com/nehonix/xypriss/internal/util/metrics"
)

// Chain is the MiddlewareChain orchestrator.
type Chain struct {
	mu      sync.RWMutex
	entries []*model.MiddlewareEntry
	byID    map[string]*model.MiddlewareEntry
	nextOrd int
}

// New returns an empty Chain.
func New() *Chain {
	return &Chain{byID: make(map[string]*model.MiddlewareEntry)}
}

// RegisterOptions configures one Register call.
type RegisterOptions struct {
	ID           string
	Priority     model.Priority
	PathScope    string
	Name         string
	Description  string
	ErrorHandler model.MiddlewareErrorFunc
	DeadlineMS   int64
}

// Register adds a middleware to the chain, returning its id. Insertion
// order is preserved within equal priority.
func (c *Chain) Register(handler model.MiddlewareFunc, opts RegisterOptions) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := opts.ID
	if id == "" {
		id = generateID(c.nextOrd)
	}
	e := &model.MiddlewareEntry{
		ID:           id,
		Handler:      handler,
		ErrorHandler: opts.ErrorHandler,
		Priority:     opts.Priority,
		PathScope:    opts.PathScope,
		Name:         opts.Name,
		Description:  opts.Description,
		Deadline:     opts.DeadlineMS * int64(time.Millisecond),
	}
	e.Enabled.Store(true)
	c.entries = append(c.entries, e)
	c.byID[id] = e
	c.nextOrd++
	c.resort()
	return id
}

func generateID(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n == 0 {
		return "mw-0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{alphabet[n%len(alphabet)]}, b...)
		n /= len(alphabet)
	}
	return "mw-" + string(b)
}

// resort stably orders entries by priority bucket, preserving original
// insertion order within a bucket.
func (c *Chain) resort() {
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].Priority < c.entries[j].Priority
	})
}

// Unregister removes a middleware by id.
func (c *Chain) Unregister(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	for i, e := range c.entries {
		if e.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	return true
}

// Enable/Disable toggle a middleware's active state.
func (c *Chain) Enable(id string) bool  { return c.setEnabled(id, true) }
func (c *Chain) Disable(id string) bool { return c.setEnabled(id, false) }

func (c *Chain) setEnabled(id string, v bool) bool {
	c.mu.RLock()
	e, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	e.Enabled.Store(v)
	return true
}

// List returns the ordered sequence of registered MiddlewareEntry.
func (c *Chain) List() []*model.MiddlewareEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.MiddlewareEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Execute runs the chain for one request. Middleware compose like
// connect/express handlers: next() recursively drives the remainder of the
// chain and only returns once that remainder has settled, so code written
// after next() (e.g. access logging) observes the full downstream outcome.
// Execute returns false if some middleware never invoked next — the
// Dispatcher must then skip the route handler.
func (c *Chain) Execute(req *model.Request, res *model.Response) bool {
	entries := c.matchingEntries(req.Path)
	completed := false

	var run func(idx int, err error)
	run = func(idx int, err error) {
		if res.Sent {
			return
		}
		for idx < len(entries) && !entries[idx].Enabled.Load() {
			idx++
		}
		if idx >= len(entries) {
			if err == nil {
				completed = true
			}
			return
		}
		e := entries[idx]

		if err != nil {
			if e.ErrorHandler == nil {
				run(idx+1, err)
				return
			}
			c.invokeTimed(e, func() {
				e.ErrorHandler(err, req, res, func(nextErr error) { run(idx+1, nextErr) })
			})
			return
		}

		c.invokeTimed(e, func() {
			e.Handler(req, res, func(nextErr error) { run(idx+1, nextErr) })
		})
	}

	run(0, nil)
	return completed
}

func (c *Chain) invokeTimed(e *model.MiddlewareEntry, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	e.Stats.RecordLatency(elapsed.Nanoseconds())
	metrics.MiddlewareLatency.WithLabelValues(e.ID).Observe(elapsed.Seconds())
	if e.Deadline > 0 && elapsed.Nanoseconds() > e.Deadline {
		log.Warn("middleware exceeded its configured deadline", log.Pairs{"id": e.ID, "deadlineNs": e.Deadline})
	}
}

// MatchingIDs returns the ids of every registered middleware whose
// pathScope, if any, covers path — the effective middleware set a route at
// path actually runs through Execute, used by RequestClassifier to decide
// fast-path eligibility instead of a separately hand-maintained
// per-route list.
func (c *Chain) MatchingIDs(path string) []string {
	entries := c.matchingEntries(path)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// matchingEntries returns enabled-or-not entries (priority-ordered) whose
// pathScope, if any, is a segment-aligned prefix of path.
func (c *Chain) matchingEntries(path string) []*model.MiddlewareEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.MiddlewareEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.PathScope != "" && !scopeMatches(e.PathScope, path) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func scopeMatches(scope, path string) bool {
	scope = strings.TrimSuffix(scope, "/")
	if scope == "" {
		return true
	}
	if path == scope {
		return true
	}
	return strings.HasPrefix(path, scope+"/")
}
