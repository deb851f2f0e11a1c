package console

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nehonix/xypriss/internal/config"
)

func TestFiltersExcludeWinsOverInclude(t *testing.T) {
	ic := New(config.ConsoleInterceptCfg{
		IncludePatterns: []string{"request"},
		ExcludePatterns: []string{"secret"},
	}, nil, nil)
	assert.True(t, ic.passesFilters("handling request"))
	assert.False(t, ic.passesFilters("handling request with secret"))
	assert.False(t, ic.passesFilters("unrelated line"))
}

func TestFiltersRegexPattern(t *testing.T) {
	ic := New(config.ConsoleInterceptCfg{IncludePatterns: []string{"/^ERROR/"}}, nil, nil)
	assert.True(t, ic.passesFilters("ERROR something broke"))
	assert.False(t, ic.passesFilters("info: all good"))
}

func TestRateLimitDropsExcess(t *testing.T) {
	ic := New(config.ConsoleInterceptCfg{MaxInterceptionsPerSecond: 2}, nil, nil)
	assert.True(t, ic.allowRate())
	assert.True(t, ic.allowRate())
	assert.False(t, ic.allowRate())
}

func TestTraceHookRejectedWhenTracingDisabled(t *testing.T) {
	ic := New(config.ConsoleInterceptCfg{TracingEnabled: false}, nil, nil)
	ok := ic.RegisterTraceHook(func(Capture) {})
	assert.False(t, ok)
}

func TestTraceHookAcceptedWhenEnabled(t *testing.T) {
	ic := New(config.ConsoleInterceptCfg{TracingEnabled: true, TraceBufferSize: 4}, nil, nil)
	var got Capture
	ok := ic.RegisterTraceHook(func(c Capture) { got = c })
	assert.True(t, ok)

	ic.record(Capture{Message: "hello", Timestamp: time.Now()})
	assert.Equal(t, "hello", got.Message)
}

func TestTraceRingBoundedSize(t *testing.T) {
	ic := New(config.ConsoleInterceptCfg{TraceBufferSize: 2}, nil, nil)
	ic.record(Capture{Message: "a"})
	ic.record(Capture{Message: "b"})
	ic.record(Capture{Message: "c"})
	buf := ic.TraceBuffer()
	assert.Len(t, buf, 2)
}

func TestInferLevel(t *testing.T) {
	assert.Equal(t, LevelError, inferLevel("ERROR: boom"))
	assert.Equal(t, LevelWarn, inferLevel("warn: careful"))
	assert.Equal(t, LevelInfo, inferLevel("just some text"))
}
