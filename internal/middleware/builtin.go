package middleware

import (
	"time"

	"github.com/nehonix/xypriss/internal/model"
	"github.com/nehonix/xypriss/internal/util/log"
	"github.com/nehonix/xypriss/internal/util/tracing"
)

// Tracing is a registrable MiddlewareFunc that starts a span over
// raw.Context()
// for the duration of the chain and rebinds Request.raw to carry it forward.
func Tracing() model.MiddlewareFunc {
	return func(req *model.Request, res *model.Response, next model.Next) {
		raw := req.Raw()
		if raw == nil {
			next(nil)
			return
		}
		ctx, span := tracing.SpanFromContext(raw.Context(), req.Path, "xypriss.request")
		defer span.End()
		req.WithRaw(raw.WithContext(ctx))
		next(nil)
	}
}

// AccessLog is a chain-native take on gorilla/handlers'
// LoggingHandler/CombinedLoggingHandler pattern: one structured line per
// completed request, run at PriorityCritical.
func AccessLog() model.MiddlewareFunc {
	return func(req *model.Request, res *model.Response, next model.Next) {
		start := time.Now()
		next(nil)
		log.Info("request", log.Pairs{
			"method":     req.Method,
			"path":       req.Path,
			"status":     res.Status,
			"requestId":  req.RequestID,
			"remote":     req.RemoteAddress,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// RegisterDefaults installs the built-in critical-priority middlewares
// (tracing, then access logging) that every XyPriss application carries
// regardless of user-registered middleware.
func RegisterDefaults(c *Chain) {
	c.Register(Tracing(), RegisterOptions{
		ID:       "xypriss.tracing",
		Priority: model.PriorityCritical,
		Name:     "tracing",
	})
	c.Register(AccessLog(), RegisterOptions{
		ID:       "xypriss.access-log",
		Priority: model.PriorityCritical,
		Name:     "access-log",
	})
}
