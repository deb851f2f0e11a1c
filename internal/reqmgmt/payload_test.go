package reqmgmt

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nehonix/xypriss/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestURLLengthLimit(t *testing.T) {
	g := NewPayloadGuard(config.PayloadConfig{MaxURLLength: 20}, config.ServerConfig{})
	h := g.Wrap(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/short", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/"+strings.Repeat("x", 40), nil))
	assert.Equal(t, http.StatusRequestURITooLong, rec.Code)
}

func TestDisallowedMimeType(t *testing.T) {
	g := NewPayloadGuard(config.PayloadConfig{AllowedMimeTypes: []string{"application/json"}}, config.ServerConfig{})
	h := g.Wrap(okHandler())

	r := httptest.NewRequest("POST", "/", strings.NewReader(`<x/>`))
	r.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeclaredBodyTooLargeRejectedEarly(t *testing.T) {
	g := NewPayloadGuard(config.PayloadConfig{MaxBodySize: 10}, config.ServerConfig{})
	h := g.Wrap(okHandler())

	r := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 50)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBodyReadIsCapped(t *testing.T) {
	g := NewPayloadGuard(config.PayloadConfig{MaxBodySize: 10}, config.ServerConfig{})
	var readErr error
	h := g.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	// Chunked request: no Content-Length to check up front, so the cap must
	// bite at read time.
	r := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 50)))
	r.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Error(t, readErr)
}

func TestJSONLimitTighterThanGlobal(t *testing.T) {
	g := NewPayloadGuard(
		config.PayloadConfig{MaxBodySize: 100},
		config.ServerConfig{JSONLimit: 5},
	)
	h := g.Wrap(okHandler())

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"k":"value"}`))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
