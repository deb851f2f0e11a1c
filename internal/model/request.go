// Package model holds the core data types shared across XyPriss's
// request-processing runtime: Request, Response, Route, MiddlewareEntry,
// Plugin, Worker, RedirectInstance, and HTTPDocument.
package model

import (
	"net/http"
	"time"
)

// Classification tags the dispatch path a Request takes.
type Classification string

const (
	ClassificationUltraFast Classification = "ultra-fast"
	ClassificationFast      Classification = "fast"
	ClassificationStandard  Classification = "standard"
)

// Timing records monotonic stage marks for one request's lifecycle.
type Timing struct {
	Start      time.Time
	Classify   time.Duration
	Middleware time.Duration
	Handler    time.Duration
	Plugin     time.Duration
	Total      time.Duration
}

// Request is owned by the Dispatcher for the lifetime of one HTTP request;
// it is never shared across requests.
type Request struct {
	Method         string
	URL            string
	Path           string
	ParsedQuery    map[string][]string
	Header         http.Header
	Cookies        map[string]*http.Cookie
	Body           []byte
	JSONBody       interface{}
	RemoteAddress  string
	Protocol       string
	RequestID      string
	Classification Classification
	Params         map[string]string
	Timing         Timing

	raw *http.Request
}

// NewRequest builds a Request from an inbound *http.Request. The body is
// NOT read here; Dispatcher reads and attaches it per content-type.
func NewRequest(r *http.Request, requestID string) *Request {
	cookies := make(map[string]*http.Cookie, len(r.Cookies()))
	for _, c := range r.Cookies() {
		cookies[c.Name] = c
	}
	return &Request{
		Method:        r.Method,
		URL:           r.URL.String(),
		Path:          r.URL.Path,
		ParsedQuery:   map[string][]string(r.URL.Query()),
		Header:        r.Header,
		Cookies:       cookies,
		RemoteAddress: r.RemoteAddr,
		Protocol:      r.Proto,
		RequestID:     requestID,
		Params:        map[string]string{},
		Timing:        Timing{Start: time.Now()},
		raw:           r,
	}
}

// Raw exposes the underlying *http.Request for handlers/middleware that
// need direct access (body streaming, context propagation).
func (r *Request) Raw() *http.Request { return r.raw }

// WithRaw replaces the underlying *http.Request, used when middleware
// derives a new request via r.WithContext(ctx).
func (r *Request) WithRaw(raw *http.Request) { r.raw = raw }
