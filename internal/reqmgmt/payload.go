package reqmgmt

import (
	"mime"
	"net/http"

	"github.com/nehonix/xypriss/internal/config"
)

// PayloadGuard rejects requests whose URL or declared body exceeds the
// configured bounds before any handler work happens, and caps actual body
// reads so a lying Content-Length cannot bypass the limit.
type PayloadGuard struct {
	maxBodySize     int64
	maxURLLength    int
	jsonLimit       int64
	urlEncodedLimit int64
	allowedMime     map[string]struct{}
}

// NewPayloadGuard builds a PayloadGuard from the payload configuration
// group plus the server-level body-size keys.
func NewPayloadGuard(p config.PayloadConfig, srv config.ServerConfig) *PayloadGuard {
	g := &PayloadGuard{
		maxBodySize:     p.MaxBodySize,
		maxURLLength:    p.MaxURLLength,
		jsonLimit:       srv.JSONLimit,
		urlEncodedLimit: srv.URLEncodedLimit,
	}
	if len(p.AllowedMimeTypes) > 0 {
		g.allowedMime = make(map[string]struct{}, len(p.AllowedMimeTypes))
		for _, mt := range p.AllowedMimeTypes {
			g.allowedMime[mt] = struct{}{}
		}
	}
	return g
}

// bodyLimitFor picks the tightest applicable limit for the request's media
// type; zero means unlimited.
func (g *PayloadGuard) bodyLimitFor(mediaType string) int64 {
	limit := g.maxBodySize
	var specific int64
	switch mediaType {
	case "application/json":
		specific = g.jsonLimit
	case "application/x-www-form-urlencoded":
		specific = g.urlEncodedLimit
	}
	if specific > 0 && (limit == 0 || specific < limit) {
		limit = specific
	}
	return limit
}

// Wrap composes the guard around next. With no bounds configured it
// returns next unchanged.
func (g *PayloadGuard) Wrap(next http.Handler) http.Handler {
	if g.maxBodySize == 0 && g.maxURLLength == 0 && g.jsonLimit == 0 && g.urlEncodedLimit == 0 && g.allowedMime == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.maxURLLength > 0 && len(r.URL.String()) > g.maxURLLength {
			writeJSONError(w, http.StatusRequestURITooLong, "request URL too long", "url_too_long")
			return
		}

		mediaType := ""
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mediaType, _, _ = mime.ParseMediaType(ct)
		}

		if g.allowedMime != nil && mediaType != "" && r.ContentLength != 0 {
			if _, ok := g.allowedMime[mediaType]; !ok {
				writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported media type", "media_type")
				return
			}
		}

		if limit := g.bodyLimitFor(mediaType); limit > 0 {
			if r.ContentLength > limit {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "body_too_large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		next.ServeHTTP(w, r)
	})
}
