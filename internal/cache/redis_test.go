package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/config"
)

func newMiniredisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	host, portStr, err := splitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	rb, err := NewRedisBackend(config.RedisCacheConfig{Host: host, Port: port})
	require.NoError(t, err)
	return rb
}

func splitHostPort(addr string) (string, string, error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return addr, "", nil
}

func TestRedisBackendRoundTrip(t *testing.T) {
	rb := newMiniredisBackend(t)
	defer rb.Close()
	ctx := context.Background()

	require.NoError(t, rb.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := rb.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	exists, err := rb.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, rb.Delete(ctx, "k"))
	_, ok, err = rb.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecureCacheHybridPromotesToMemory(t *testing.T) {
	rb := newMiniredisBackend(t)
	defer rb.Close()
	ctx := context.Background()
	require.NoError(t, rb.Set(ctx, "distkey", marshalFrame(frame{Payload: []byte("remote")}), 0))

	sc := newTestCache(t)
	sc.strategy = StrategyHybrid
	sc.distrib = rb
	sc.compressDefault = false
	sc.encryptDefault = false

	v, ok := sc.Get(ctx, "distkey")
	require.True(t, ok)
	assert.Equal(t, []byte("remote"), v)

	// Now memory tier should also have it.
	_, memOK := sc.memory.Get("distkey")
	assert.True(t, memOK)
}
