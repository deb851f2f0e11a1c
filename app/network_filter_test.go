package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/network"
)

func TestNetworkFilterHandlerRejectsOverLimit(t *testing.T) {
	plugins := &network.Plugins{
		RateLimit: network.NewRateLimit(config.RateLimitConfig{
			Enabled:      true,
			Strategy:     "fixed-window",
			Requests:     2,
			KeyBy:        "global",
			HeaderPrefix: "X-RateLimit",
			Window:       time.Minute,
		}, nil),
	}
	var handlerCalls int
	h := newNetworkFilterHandler(plugins, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widgets", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, 2, handlerCalls, "handler must not run once the window is exhausted")
}

func TestNetworkFilterHandlerCompressesEligibleResponse(t *testing.T) {
	body := strings.Repeat("a", 200)
	plugins := &network.Plugins{
		Compression: network.NewCompression(config.CompressionConfig{
			Enabled:        true,
			Algorithms:     []string{"gzip"},
			ContentTypes:   []string{"text/plain"},
			ThresholdBytes: 10,
			Level:          6,
		}),
	}
	h := newNetworkFilterHandler(plugins, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.NotEqual(t, body, w.Body.String())
}

func TestNetworkFilterHandlerPassesThroughWhenDisabled(t *testing.T) {
	plugins := &network.Plugins{
		RateLimit: network.NewRateLimit(config.RateLimitConfig{
			Enabled: false,
			Window:  time.Minute,
		}, nil),
		Compression: network.NewCompression(config.CompressionConfig{Enabled: false}),
	}

	h := newNetworkFilterHandler(plugins, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hi"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi", w.Body.String())
}
