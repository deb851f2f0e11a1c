package network

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/nehonix/xypriss/internal/config"
)

// Connection configures HTTP/2 settings, keep-alive, and connection pool
// caps on the underlying listener. It changes no
// request behavior beyond tuning the *http.Server/transport.
type Connection struct {
	Enabled bool

	HTTP2MaxConcurrentStreams uint32
	HTTP2InitialWindowSize    int32
	KeepAliveTimeout          time.Duration
	MaxRequestsPerConn        int
	MaxIdleConns              int
}

// NewConnection builds a Connection sub-plugin from its configuration group.
func NewConnection(cfg config.ConnectionConfig) *Connection {
	return &Connection{
		Enabled:                   cfg.Enabled,
		HTTP2MaxConcurrentStreams: cfg.HTTP2MaxConcurrentStreams,
		HTTP2InitialWindowSize:    cfg.HTTP2InitialWindowSize,
		KeepAliveTimeout:          cfg.KeepAliveTimeout,
		MaxRequestsPerConn:        cfg.MaxRequestsPerConn,
		MaxIdleConns:              cfg.MaxIdleConns,
	}
}

// Apply tunes srv in place: keep-alive timeouts and, when HTTP/2 is
// negotiable over the configured transport, h2 stream/window settings via
// golang.org/x/net/http2.ConfigureServer.
func (c *Connection) Apply(srv *http.Server) error {
	if !c.Enabled {
		return nil
	}
	if c.KeepAliveTimeout > 0 {
		srv.IdleTimeout = c.KeepAliveTimeout
	}
	if c.MaxRequestsPerConn > 0 {
		srv.SetKeepAlivesEnabled(true)
	}
	h2cfg := &http2.Server{
		MaxConcurrentStreams: c.HTTP2MaxConcurrentStreams,
	}
	if c.HTTP2InitialWindowSize > 0 {
		// http2.Server has no direct initial-window-size knob in the
		// stdlib-facing API; MaxUploadBufferPerStream is the nearest
		// equivalent exposed for per-stream flow-control tuning.
		h2cfg.MaxUploadBufferPerStream = c.HTTP2InitialWindowSize
	}
	return http2.ConfigureServer(srv, h2cfg)
}

// TransportPool returns an *http.Transport honoring MaxIdleConns, for
// callers (e.g. the Proxy sub-plugin) that dial upstreams through a
// shared, tuned connection pool rather than http.DefaultTransport.
func (c *Connection) TransportPool() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if c.MaxIdleConns > 0 {
		t.MaxIdleConns = c.MaxIdleConns
		t.MaxIdleConnsPerHost = c.MaxIdleConns
	}
	if c.KeepAliveTimeout > 0 {
		t.IdleConnTimeout = c.KeepAliveTimeout
	}
	return t
}
