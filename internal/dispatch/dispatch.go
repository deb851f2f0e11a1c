// Package dispatch implements the Dispatcher: the single request pipeline
// that parses, classifies, runs middleware, matches routes, invokes
// handlers, and drives plugin post-hooks, timing each stage as it goes.
package dispatch

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nehonix/xypriss/internal/cache"
	"github.com/nehonix/xypriss/internal/classify"
	"github.com/nehonix/xypriss/internal/middleware"
	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/routing"
	"github.com/nehonix/xypriss/internal/util/log"
	"github.com/nehonix/xypriss/internal/util/metrics"
	"github.com/nehonix/xypriss/internal/util/tracing"
)

// PluginDispatcher is the capability surface Dispatcher needs from the
// PluginEngine; it is satisfied by *plugin.Engine without an import
// cycle between dispatch and plugin.
type PluginDispatcher interface {
	Dispatch(hook model.Hook, req *model.Request, res *model.Response)
}

// NotFoundHandler handles a route-lookup miss.
type NotFoundHandler func(req *model.Request, res *model.Response)

// ErrorHandler handles an uncaught failure anywhere in the pipeline. A
// nil ErrorHandler falls back to DefaultErrorHandler.
type ErrorHandler func(err error, req *model.Request, res *model.Response)

// Dispatcher wires RouteTable, MiddlewareChain, RequestClassifier,
// SecureCache, and the PluginEngine into one request pipeline.
type Dispatcher struct {
	Routes     *routing.RouteTable
	Middleware *middleware.Chain
	Classifier *classify.Classifier
	Cache      *cache.SecureCache
	Plugins    PluginDispatcher
	FastSafe   classify.FastSafeSet
	NotFound   NotFoundHandler
	OnError    ErrorHandler
}

// New returns a Dispatcher with DefaultNotFoundHandler/DefaultErrorHandler
// installed; callers override NotFound/OnError as needed.
func New(routes *routing.RouteTable, mw *middleware.Chain, clf *classify.Classifier, c *cache.SecureCache, plugins PluginDispatcher) *Dispatcher {
	return &Dispatcher{
		Routes:     routes,
		Middleware: mw,
		Classifier: clf,
		Cache:      c,
		Plugins:    plugins,
		FastSafe:   classify.FastSafeSet{},
		NotFound:   DefaultNotFoundHandler,
		OnError:    DefaultErrorHandler,
	}
}

// ServeHTTP implements http.Handler so a Dispatcher can be mounted directly
// as the server's root handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, res := d.Handle(r)
	res.Flush(w)
}

// Handle runs the full pipeline for one inbound request
// and returns the populated Request/Response pair.
func (d *Dispatcher) Handle(r *http.Request) (*model.Request, *model.Response) {
	req := model.NewRequest(r, uuid.NewString())
	res := model.NewResponse()

	ctx, span := tracing.NewSpan(r.Context(), "xypriss.dispatch", req.Path)
	defer span.End()
	req.WithRaw(r.WithContext(ctx))

	defer func() {
		req.Timing.Total = time.Since(req.Timing.Start)
		status := strconv.Itoa(res.Status)
		metrics.RequestDuration.WithLabelValues(req.Method, req.Path, string(req.Classification), status).
			Observe(req.Timing.Total.Seconds())
		metrics.RequestsTotal.WithLabelValues(req.Method, req.Path, string(req.Classification), status).Inc()

		if rec := recover(); rec != nil {
			d.fail(asError(rec), req, res)
		}
	}()

	if err := d.parseBody(req); err != nil {
		res.WriteHeader(http.StatusBadRequest)
		res.Header.Set("Content-Type", "application/json")
		body, _ := json.Marshal(map[string]string{"error": "invalid request body"})
		_, _ = res.Write(body)
		return req, res
	}

	classifyStart := time.Now()
	route, params, found := d.lookupRoute(req)
	// The route's actual middleware set is whatever MiddlewareChain.Execute
	// will run for this path (pathScope matches), not a separate per-route
	// list — classification must agree with what actually executes.
	middlewareIDs := d.Middleware.MatchingIDs(req.Path)
	req.Classification = d.Classifier.Classify(req, middlewareIDs, d.FastSafe)
	req.Timing.Classify = time.Since(classifyStart)

	if d.Plugins != nil {
		d.Plugins.Dispatch(model.HookOnRequestStart, req, res)
	}

	if req.Classification == model.ClassificationUltraFast {
		if d.serveUltraFast(req, res) {
			if d.Plugins != nil {
				d.Plugins.Dispatch(model.HookOnCacheHit, req, res)
				d.Plugins.Dispatch(model.HookOnRequestEnd, req, res)
			}
			return req, res
		}
		if d.Plugins != nil {
			d.Plugins.Dispatch(model.HookOnCacheMiss, req, res)
		}
	}

	mwStart := time.Now()
	completed := d.Middleware.Execute(req, res)
	req.Timing.Middleware = time.Since(mwStart)
	if !completed || res.Sent {
		if d.Plugins != nil {
			d.Plugins.Dispatch(model.HookOnRequestEnd, req, res)
		}
		return req, res
	}

	if !found {
		d.NotFound(req, res)
		if d.Plugins != nil {
			d.Plugins.Dispatch(model.HookOnRequestEnd, req, res)
		}
		return req, res
	}
	req.Params = params

	handlerStart := time.Now()
	route.Handler(req, res)
	req.Timing.Handler = time.Since(handlerStart)

	pluginStart := time.Now()
	if d.Plugins != nil {
		d.Plugins.Dispatch(model.HookOnRequestEnd, req, res)
	}
	req.Timing.Plugin = time.Since(pluginStart)

	return req, res
}

func (d *Dispatcher) lookupRoute(req *model.Request) (*model.Route, map[string]string, bool) {
	return d.Routes.Lookup(req.Method, req.Path)
}

// serveUltraFast consults SecureCache for a pre-computed response keyed
// ultra:{METHOD}:{path}. It returns true if it served a hit.
// Cached values are msgp-encoded model.HTTPDocuments so a hit replays the
// full status and headers, not just the body.
func (d *Dispatcher) serveUltraFast(req *model.Request, res *model.Response) bool {
	if d.Cache == nil {
		return false
	}
	key := classify.UltraFastCacheKey(req.Method, req.Path)
	val, ok := d.Cache.Get(req.Raw().Context(), key)
	if !ok {
		return false
	}
	doc := &model.HTTPDocument{}
	if _, err := doc.UnmarshalMsg(val); err != nil {
		log.WarnOnce("ultra-fast-decode:"+key, "failed to decode ultra-fast cache document", log.Pairs{"key": key, "error": err.Error()})
		return false
	}
	for k, vs := range doc.Header {
		for _, v := range vs {
			res.Header.Add(k, v)
		}
	}
	res.Header.Set("X-Cache", "HIT")
	if doc.Status != 0 {
		res.WriteHeader(doc.Status)
	}
	_, _ = res.Write(doc.Body)
	return true
}

// parseBody parses the request body by content type for methods that
// carry one.
func (d *Dispatcher) parseBody(req *model.Request) error {
	raw := req.Raw()
	if raw == nil {
		return nil
	}
	if req.Method != http.MethodPost && req.Method != http.MethodPut && req.Method != http.MethodPatch {
		return nil
	}
	ct := raw.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(raw.Body)
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return err
		}
		req.JSONBody = v
	case "application/x-www-form-urlencoded":
		if err := raw.ParseForm(); err != nil {
			return err
		}
		flat := make(map[string]string, len(raw.PostForm))
		for k := range raw.PostForm {
			flat[k] = raw.PostForm.Get(k)
		}
		req.JSONBody = flat
	case "multipart/form-data":
		// not parsed here; the body is left unread.
	default:
		// raw bytes, left unread for handlers that stream the body directly.
	}
	return nil
}

func (d *Dispatcher) fail(err error, req *model.Request, res *model.Response) {
	log.Error("unhandled dispatch error", log.Pairs{"requestId": req.RequestID, "path": req.Path, "error": err.Error()})
	if d.Plugins != nil {
		d.Plugins.Dispatch(model.HookOnRequestError, req, res)
	}
	handler := d.OnError
	if handler == nil {
		handler = DefaultErrorHandler
	}
	handler(err, req, res)
}

// DefaultNotFoundHandler writes a JSON 404 body.
func DefaultNotFoundHandler(req *model.Request, res *model.Response) {
	res.WriteHeader(http.StatusNotFound)
	res.Header.Set("Content-Type", "application/json")
	body, _ := json.Marshal(map[string]string{"error": "not found", "path": req.Path})
	_, _ = res.Write(body)
}

// DefaultErrorHandler writes a generic JSON 500 body.
func DefaultErrorHandler(err error, req *model.Request, res *model.Response) {
	res.WriteHeader(http.StatusInternalServerError)
	res.Header.Set("Content-Type", "application/json")
	body, _ := json.Marshal(map[string]string{"error": "internal server error"})
	_, _ = res.Write(body)
}

func asError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}
