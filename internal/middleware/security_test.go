package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

func TestSecurityHeadersAppliesHelmetAndXSS(t *testing.T) {
	mw := SecurityHeaders(config.SecurityConfig{Helmet: true, XSS: true})
	res := model.NewResponse()
	called := false
	mw(newRequest(t, ""), res, func(err error) { called = true })

	assert.True(t, called)
	assert.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", res.Header.Get("X-XSS-Protection"))
}

func TestSecurityHeadersDisabledSetsNothing(t *testing.T) {
	mw := SecurityHeaders(config.SecurityConfig{})
	res := model.NewResponse()
	mw(newRequest(t, ""), res, func(err error) {})

	assert.Empty(t, res.Header.Get("X-Frame-Options"))
	assert.Empty(t, res.Header.Get("X-XSS-Protection"))
}

func TestBruteForceAllowsUnderBurst(t *testing.T) {
	mw := BruteForce(config.SecurityConfig{BruteForce: true})
	res := model.NewResponse()
	allowed := 0
	for i := 0; i < 20; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		req := model.NewRequest(r, "req")
		req.RemoteAddress = "10.0.0.1:1234"
		mw(req, res, func(err error) { allowed++ })
	}
	assert.Equal(t, 20, allowed, "burst of 20 should all be allowed")
}

func TestBruteForceRejectsOverBurst(t *testing.T) {
	mw := BruteForce(config.SecurityConfig{BruteForce: true})
	var last *model.Response
	for i := 0; i < 21; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		req := model.NewRequest(r, "req")
		req.RemoteAddress = "10.0.0.2:1234"
		res := model.NewResponse()
		mw(req, res, func(err error) {})
		last = res
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Status)
}

func TestBruteForceDisabledAllowsEverything(t *testing.T) {
	mw := BruteForce(config.SecurityConfig{BruteForce: false})
	res := model.NewResponse()
	called := false
	mw(newRequest(t, ""), res, func(err error) { called = true })
	assert.True(t, called)
}

func TestCORSDisabledPassesThrough(t *testing.T) {
	mw := CORS(config.SecurityConfig{CORS: false})
	res := model.NewResponse()
	called := false
	mw(newRequest(t, ""), res, func(err error) { called = true })
	assert.True(t, called)
}

func TestCORSEnabledLetsSimpleRequestThrough(t *testing.T) {
	mw := CORS(config.SecurityConfig{CORS: true})
	res := model.NewResponse()
	called := false
	mw(newRequest(t, ""), res, func(err error) { called = true })
	assert.True(t, called)
}
