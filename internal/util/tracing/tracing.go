/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package tracing wraps OpenTelemetry span creation behind the
// tracer-implementation selection XyPriss exposes through configuration
// (tracing.tracerImplementation: stdout|jaeger).
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ApplicationName is the tracer's reported service name.
var ApplicationName = "xypriss"

// ApplicationVersion is the reported service version, set at startup.
var ApplicationVersion = "dev"

// Name returns the tracer name for this application.
func Name() string {
	return fmt.Sprintf("%s/%s", ApplicationName, ApplicationVersion)
}

// NewSpan starts a new span tagged with a single cache-key attribute.
func NewSpan(ctx context.Context, spanName, key string) (context.Context, trace.Span) {
	tr := otel.Tracer(Name())
	return tr.Start(ctx, spanName, trace.WithAttributes(attribute.String("cacheKey", key)))
}

// SpanFromContext starts a child span named spanName, tagged with the
// given handler name, under whatever span context ctx already carries.
func SpanFromContext(ctx context.Context, handlerName, spanName string) (context.Context, trace.Span) {
	tr := otel.Tracer(Name())
	return tr.Start(ctx, spanName, trace.WithAttributes(attribute.String("handlerName", handlerName)))
}

// PrepareRequest extracts any incoming trace context from the request's
// headers and starts a new span for it, returning the request bound to the
// new context.
func PrepareRequest(r *http.Request, tracerName, spanName string) (*http.Request, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagationCarrier{r.Header})
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, spanName)
	return r.WithContext(ctx), span
}

type propagationCarrier struct{ h http.Header }

func (c propagationCarrier) Get(key string) string { return c.h.Get(key) }
func (c propagationCarrier) Set(key, value string) { c.h.Set(key, value) }
func (c propagationCarrier) Keys() []string {
	keys := make([]string, 0, len(c.h))
	for k := range c.h {
		keys = append(keys, k)
	}
	return keys
}
