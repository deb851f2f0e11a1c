// Package routing implements RouteTable: method+pattern →
// handler lookup with parameter extraction, exposed as a runtime
// add/lookup API.
package routing

import (
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/nehonix/xypriss/internal/model"
)

// RouteTable owns a mux.Router, reachable through Mux() and ServeAdmin,
// and implements its own method+pattern matching semantics on top. Lookup
// never consults that router, and nothing in this package serves it.
type RouteTable struct {
	mu     sync.RWMutex
	routes []*model.Route
	mux    *mux.Router
}

// New returns an empty RouteTable.
func New() *RouteTable {
	return &RouteTable{mux: mux.NewRouter()}
}

// Mux exposes the underlying *mux.Router for mounting admin endpoints
// alongside XyPriss's own route matching.
func (t *RouteTable) Mux() *mux.Router { return t.mux }

// Add registers a route. method "all" matches any HTTP method.
// pattern is a literal path with `:name` placeholders; regex-matched routes
// are registered with AddRegex instead.
// Per-route middleware is expressed entirely through MiddlewareChain's
// pathScope, not through a route-local id list — Dispatcher asks the
// Chain which registered ids match a path rather than storing that set here.
func (t *RouteTable) Add(method, pattern string, handler model.RouteHandler) *model.Route {
	r := &model.Route{
		Method:  strings.ToUpper(method),
		Pattern: pattern,
		Handler: handler,
	}
	if method == "all" {
		r.Method = "all"
	}
	r.Segments = strings.Split(strings.Trim(pattern, "/"), "/")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, r)
	return r
}

// AddRegex registers a regex-matched route; paramNames orders the capture
// groups. If paramNames is empty, positional fallback names
// ("param1", "param2", ...) are used.
func (t *RouteTable) AddRegex(method string, re *regexp.Regexp, paramNames []string, handler model.RouteHandler) *model.Route {
	if len(paramNames) == 0 {
		paramNames = positionalNames(re.NumSubexp())
	}
	r := &model.Route{
		Method:     strings.ToUpper(method),
		Pattern:    re.String(),
		Regex:      re,
		ParamNames: paramNames,
		Handler:    handler,
	}
	if method == "all" {
		r.Method = "all"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, r)
	return r
}

func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "param" + itoa(i+1)
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// Lookup matches method+path against registered routes in insertion order.
// An exact literal match (no parameter segments) wins over a parameterized
// or regex match regardless of registration order; within each class the
// first route added wins. Collisions beyond that are not detected — route
// authors own disambiguation.
func (t *RouteTable) Lookup(method, path string) (*model.Route, map[string]string, bool) {
	method = strings.ToUpper(method)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var first *model.Route
	var firstParams map[string]string
	for _, r := range t.routes {
		if !r.MethodMatches(method) {
			continue
		}
		if r.IsLiteral() {
			params, ok := matchLiteral(r.Segments, path)
			if !ok {
				continue
			}
			if len(params) == 0 {
				// Exact literal: nothing can outrank it.
				return r, params, true
			}
			if first == nil {
				first, firstParams = r, params
			}
		} else if first == nil {
			if params, ok := matchRegex(r, path); ok {
				first, firstParams = r, params
			}
		}
	}
	return first, firstParams, first != nil
}

func matchLiteral(segments []string, path string) (map[string]string, bool) {
	pathSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathSegs) != len(segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			params[seg[1:]] = pathSegs[i]
			continue
		}
		if seg != pathSegs[i] {
			return nil, false
		}
	}
	return params, true
}

func matchRegex(r *model.Route, path string) (map[string]string, bool) {
	m := r.Regex.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := map[string]string{}
	for i, name := range r.ParamNames {
		if i+1 < len(m) {
			params[name] = m[i+1]
		}
	}
	return params, true
}

// ServeAdmin mounts an http.HandlerFunc directly on the underlying mux
// for endpoints that don't need XyPriss's own param-extraction semantics.
func (t *RouteTable) ServeAdmin(method, path string, h http.HandlerFunc) {
	t.mux.HandleFunc(path, h).Methods(method)
}
