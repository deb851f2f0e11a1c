package middleware

import (
	"net/http"
	"sync"

	"github.com/gorilla/handlers"
	"golang.org/x/time/rate"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

// responseShim adapts a model.Response so stdlib-shaped middleware
// (gorilla/handlers.CORS and friends) can sit in front of the chain's
// continuation-passing model, mirroring model.WrapHTTPHandler's
// passthroughWriter on the inbound side instead of the outbound one.
type responseShim struct {
	res         *model.Response
	wroteHeader bool
}

func (w *responseShim) Header() http.Header { return w.res.Header }

func (w *responseShim) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.res.Write(b)
}

func (w *responseShim) WriteHeader(status int) {
	w.wroteHeader = true
	w.res.WriteHeader(status)
}

// CORS wraps gorilla/handlers.CORS behind the MiddlewareChain's next()
// continuation, active only when security.cors is enabled.
// Preflight OPTIONS requests are answered and terminated by the wrapped
// handler itself, so next is only invoked for requests it lets through.
func CORS(cfg config.SecurityConfig) model.MiddlewareFunc {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	return func(req *model.Request, res *model.Response, next model.Next) {
		if !cfg.CORS {
			next(nil)
			return
		}
		called := false
		wrapped := cors(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
			next(nil)
		}))
		wrapped.ServeHTTP(&responseShim{res: res}, req.Raw())
		if !called && !res.Sent {
			// Preflight request: CORS handler answered it directly via the
			// shim; nothing left for the chain to do.
			res.Sent = true
		}
	}
}

// SecurityHeaders sets the conventional hardening headers for the
// security.helmet/security.xss toggles, applied as a fixed header set
// rather than a configurable policy engine.
func SecurityHeaders(cfg config.SecurityConfig) model.MiddlewareFunc {
	return func(req *model.Request, res *model.Response, next model.Next) {
		if cfg.Helmet {
			res.Header.Set("X-Frame-Options", "DENY")
			res.Header.Set("X-Content-Type-Options", "nosniff")
			res.Header.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			res.Header.Set("Referrer-Policy", "no-referrer")
		}
		if cfg.XSS {
			res.Header.Set("X-XSS-Protection", "1; mode=block")
		}
		next(nil)
	}
}

// BruteForce rate-limits requests per remote address using a token bucket
// , the same golang.org/x/time/rate primitive
// NetworkPlugins' RateLimit sub-plugin uses for its token-bucket strategy,
// applied here as a fixed, conservative default (10 req/s, burst 20) since
// brute-force protection is a security concern rather than a tunable
// traffic-shaping one.
func BruteForce(cfg config.SecurityConfig) model.MiddlewareFunc {
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(10, 20)
			limiters[key] = l
		}
		return l
	}

	return func(req *model.Request, res *model.Response, next model.Next) {
		if !cfg.BruteForce {
			next(nil)
			return
		}
		if !limiterFor(req.RemoteAddress).Allow() {
			res.WriteHeader(http.StatusTooManyRequests)
			res.Header.Set("Content-Type", "application/json")
			_, _ = res.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next(nil)
	}
}
