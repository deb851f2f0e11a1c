package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/cache"
	"github.com/nehonix/xypriss/internal/classify"
	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/crypto"
	"github.com/nehonix/xypriss/internal/middleware"
	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/routing"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := &config.CacheConfig{
		Strategy: "memory",
		Memory:   config.MemoryCacheConfig{MaxSize: 1 << 20, MaxEntries: 1000},
	}
	sc, err := cache.New(cfg, &crypto.StubProvider{}, make([]byte, crypto.AEADKeySize))
	require.NoError(t, err)
	rt := routing.New()
	mw := middleware.New()
	clf := classify.New()
	return New(rt, mw, clf, sc, nil)
}

func TestDispatcherRoutesToHandler(t *testing.T) {
	d := newTestDispatcher(t)
	d.Routes.Add("GET", "/hello/:name", func(req *model.Request, res *model.Response) {
		res.WriteHeader(http.StatusOK)
		_, _ = res.Write([]byte("hi " + req.Params["name"]))
	})

	req := httptest.NewRequest("GET", "/hello/world", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi world", w.Body.String())
}

func TestDispatcherNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	req := httptest.NewRequest("GET", "/nope", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatcherMiddlewareShortCircuit(t *testing.T) {
	d := newTestDispatcher(t)
	var handlerRan bool
	d.Middleware.Register(func(req *model.Request, res *model.Response, next model.Next) {
		res.WriteHeader(http.StatusForbidden)
	}, middleware.RegisterOptions{Priority: model.PriorityCritical})
	d.Routes.Add("GET", "/secret", func(req *model.Request, res *model.Response) {
		handlerRan = true
	})

	req := httptest.NewRequest("GET", "/secret", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, handlerRan)
}

func TestDispatcherJSONBodyParsed(t *testing.T) {
	d := newTestDispatcher(t)
	var seen interface{}
	d.Routes.Add("POST", "/echo", func(req *model.Request, res *model.Response) {
		seen = req.JSONBody
		res.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/echo", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	m, ok := seen.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
}

func TestDispatcherInvalidJSONReturns400(t *testing.T) {
	d := newTestDispatcher(t)
	d.Routes.Add("POST", "/echo", func(req *model.Request, res *model.Response) {})

	req := httptest.NewRequest("POST", "/echo", strings.NewReader(`{bad`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatcherUltraFastCacheHit(t *testing.T) {
	d := newTestDispatcher(t)
	d.Classifier.RegisterUltraFastTemplate(classify.NewUltraFastTemplate("/cached/:id"))

	var handlerRan bool
	d.Routes.Add("GET", "/cached/:id", func(req *model.Request, res *model.Response) {
		handlerRan = true
	})

	key := classify.UltraFastCacheKey("GET", "/cached/7")
	doc := &model.HTTPDocument{Status: http.StatusOK, Header: map[string][]string{"Content-Type": {"application/json"}}, Body: []byte(`{"hit":true}`)}
	encoded, err := doc.MarshalMsg(nil)
	require.NoError(t, err)
	require.NoError(t, d.Cache.Set(context.Background(), key, encoded, cache.SetOptions{}))

	req := httptest.NewRequest("GET", "/cached/7", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.False(t, handlerRan)
	assert.Equal(t, `{"hit":true}`, w.Body.String())
}

func TestDefaultErrorHandlerWritesJSON500(t *testing.T) {
	req := &model.Request{}
	res := model.NewResponse()
	DefaultErrorHandler(errors.New("boom"), req, res)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
}
