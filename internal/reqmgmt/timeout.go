package reqmgmt

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/util/log"
)

// Deadline enforces the per-request timeout. When the deadline expires
// before any response byte is committed, the client receives 408 and the
// handler's context is canceled so it can unwind cooperatively; a response
// already committed is allowed to finish untruncated.
type Deadline struct {
	defaultTimeout time.Duration
	// routes maps a path pattern (literal segments, `:name` wildcards) to
	// an override timeout.
	routes map[string]time.Duration
}

// NewDeadline builds a Deadline from the timeout configuration group.
func NewDeadline(cfg config.TimeoutConfig) *Deadline {
	d := &Deadline{
		defaultTimeout: cfg.DefaultTimeout,
		routes:         make(map[string]time.Duration, len(cfg.Routes)),
	}
	for pattern, secs := range cfg.Routes {
		d.routes[pattern] = time.Duration(secs) * time.Second
	}
	return d
}

// timeoutFor resolves the effective timeout for path, preferring a route
// override over the default.
func (d *Deadline) timeoutFor(path string) time.Duration {
	for pattern, t := range d.routes {
		if patternMatches(pattern, path) {
			return t
		}
	}
	return d.defaultTimeout
}

func patternMatches(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	ss := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(ss) {
		return false
	}
	for i, seg := range ps {
		if strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != ss[i] {
			return false
		}
	}
	return true
}

// Wrap composes the deadline around next. A zero default timeout with no
// route overrides returns next unchanged.
func (d *Deadline) Wrap(next http.Handler) http.Handler {
	if d.defaultTimeout == 0 && len(d.routes) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeout := d.timeoutFor(r.URL.Path)
		if timeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		dw := &deadlineWriter{w: w}
		done := make(chan struct{})
		go func() {
			defer close(done)
			next.ServeHTTP(dw, r.WithContext(ctx))
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if dw.expire() {
				log.Warn("request deadline exceeded", log.Pairs{"path": r.URL.Path, "timeout": timeout.String()})
				writeJSONError(w, http.StatusRequestTimeout, "request timeout", "timeout")
				return
			}
			// Bytes are already on the wire; let the handler finish.
			<-done
		}
	})
}

// deadlineWriter tracks whether the response is committed and, once the
// deadline has expired uncommitted, swallows any late handler writes so
// they cannot interleave with the 408 body.
type deadlineWriter struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	committed bool
	timedOut  bool
}

// expire marks the writer timed out; it reports false when the response was
// already committed, in which case the caller must not write.
func (dw *deadlineWriter) expire() bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.committed {
		return false
	}
	dw.timedOut = true
	return true
}

func (dw *deadlineWriter) Header() http.Header {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timedOut {
		return make(http.Header)
	}
	return dw.w.Header()
}

func (dw *deadlineWriter) WriteHeader(status int) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timedOut {
		return
	}
	dw.committed = true
	dw.w.WriteHeader(status)
}

func (dw *deadlineWriter) Write(p []byte) (int, error) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timedOut {
		return len(p), nil
	}
	dw.committed = true
	return dw.w.Write(p)
}
