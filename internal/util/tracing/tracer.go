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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// StdoutTracerImplementation writes spans to stdout; it is the default
	// and what SetTracer installs for an unrecognized value.
	StdoutTracerImplementation TracerImplementation = iota

	// JaegerTracer exports spans to a Jaeger-compatible OTLP collector.
	JaegerTracer
)

// TracerImplementation enumerates the tracer backends XyPriss can install.
type TracerImplementation int

var (
	tracerImplementationStrings = []string{
		"stdout",
		"jaeger",
	}
	// TracerImplementations maps configuration strings to their enum value.
	TracerImplementations = map[string]TracerImplementation{
		tracerImplementationStrings[StdoutTracerImplementation]: StdoutTracerImplementation,
		tracerImplementationStrings[JaegerTracer]:               JaegerTracer,
	}
)

// GlobalTracer returns the tracer registered under the application name, or
// a no-op tracer if none has been installed.
func GlobalTracer(ctx context.Context) trace.Tracer {
	return otel.Tracer(Name())
}

func (t TracerImplementation) String() string {
	if t < StdoutTracerImplementation || t > JaegerTracer {
		return "unknown-tracer"
	}
	return tracerImplementationStrings[t]
}

// SetTracer installs the requested tracer implementation as the global
// OpenTelemetry trace provider and returns a shutdown function.
func SetTracer(t TracerImplementation, collectorURL string) (func(), error) {
	switch t {
	case JaegerTracer:
		return setJaegerTracer(collectorURL)
	case StdoutTracerImplementation:
		return setStdOutTracer()
	default:
		return setStdOutTracer()
	}
}
