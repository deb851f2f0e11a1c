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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(routes map[string]http.HandlerFunc) *mux.Router {
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, span := PrepareRequest(r, "middleware-tracer-name", "middleware-span-name")
			defer span.End()
			next.ServeHTTP(w, r)
		})
	})
	for route, handler := range routes {
		router.HandleFunc(route, handler)
	}
	return router
}

func TestTrace(t *testing.T) {
	rec, shutdown, err := setRecorderTracer()
	require.NoError(t, err)
	defer shutdown()

	routes := map[string]http.HandlerFunc{
		"/test": func(w http.ResponseWriter, r *http.Request) {
			_, span := SpanFromContext(r.Context(), "test-handler", "test-span-name")
			defer span.End()
			w.WriteHeader(http.StatusOK)
		},
	}

	router := setup(routes)
	ts := httptest.NewServer(router)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, rec.GetSpans())
}

func TestTracerImplementationString(t *testing.T) {
	assert.Equal(t, "stdout", StdoutTracerImplementation.String())
	assert.Equal(t, "jaeger", JaegerTracer.String())
	assert.Equal(t, "unknown-tracer", TracerImplementation(99).String())
}

func TestName(t *testing.T) {
	assert.Contains(t, Name(), ApplicationName)
}
