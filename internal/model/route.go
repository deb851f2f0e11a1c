package model

import (
	"net/http"
	"regexp"
)

// RouteHandler is the capability surface a registered route handler
// presents to the Dispatcher.
type RouteHandler func(req *Request, res *Response)

// Route is stored in the RouteTable, created during app setup and
// destroyed on shutdown.
type Route struct {
	Method     string
	Pattern    string
	Regex      *regexp.Regexp
	ParamNames []string
	Segments   []string
	Handler    RouteHandler
}

// IsLiteral reports whether this Route matches via `:param` segment rules
// rather than a compiled regex.
func (r *Route) IsLiteral() bool { return r.Regex == nil }

// MethodMatches reports whether m satisfies this Route's method rule,
// honoring the "all" wildcard.
func (r *Route) MethodMatches(m string) bool {
	return r.Method == "all" || r.Method == m
}

// WrapHTTPHandler adapts a stdlib http.HandlerFunc into a RouteHandler for
// routes that don't need the structured Request/Response (e.g. the admin
// endpoints, which app/admin.go registers through the RouteTable).
func WrapHTTPHandler(h http.HandlerFunc) RouteHandler {
	return func(req *Request, res *Response) {
		rw := &passthroughWriter{res: res}
		h(rw, req.Raw())
	}
}

type passthroughWriter struct {
	res         *Response
	wroteHeader bool
}

func (w *passthroughWriter) Header() http.Header { return w.res.Header }

func (w *passthroughWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.res.Write(b)
}

func (w *passthroughWriter) WriteHeader(status int) {
	w.wroteHeader = true
	w.res.WriteHeader(status)
}
