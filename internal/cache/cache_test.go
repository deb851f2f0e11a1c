package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/crypto"
)

func newTestCache(t *testing.T) *SecureCache {
	t.Helper()
	cfg := &config.CacheConfig{
		Strategy:          "memory",
		EnableCompression: true,
		EnableEncryption:  true,
		Memory:            config.MemoryCacheConfig{MaxSize: 0, MaxEntries: 0},
	}
	sc, err := New(cfg, &crypto.StubProvider{}, make([]byte, crypto.AEADKeySize))
	require.NoError(t, err)
	return sc
}

func TestSecureCacheSetGetRoundTrip(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "k", []byte("value"), SetOptions{}))
	v, ok := sc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestSecureCacheGetMissNeverErrors(t *testing.T) {
	sc := newTestCache(t)
	_, ok := sc.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestSecureCacheTagInvalidation(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "u:1", []byte("v1"), SetOptions{Tags: []string{"users"}}))
	require.NoError(t, sc.Set(ctx, "u:2", []byte("v2"), SetOptions{Tags: []string{"users"}}))
	require.NoError(t, sc.Set(ctx, "p:1", []byte("v3"), SetOptions{Tags: []string{"products"}}))

	n := sc.InvalidateByTags(ctx, []string{"users"})
	assert.Equal(t, 2, n)

	_, ok1 := sc.Get(ctx, "u:1")
	_, ok2 := sc.Get(ctx, "u:2")
	v3, ok3 := sc.Get(ctx, "p:1")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
	assert.Equal(t, []byte("v3"), v3)
}

func TestSecureCacheSetIdempotent(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "k", []byte("v"), SetOptions{}))
	require.NoError(t, sc.Set(ctx, "k", []byte("v"), SetOptions{}))
	v, ok := sc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestSecureCacheDeleteAndExists(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "k", []byte("v"), SetOptions{}))
	assert.True(t, sc.Exists(ctx, "k"))
	require.NoError(t, sc.Delete(ctx, "k"))
	assert.False(t, sc.Exists(ctx, "k"))
}

func TestSecureCacheMGetMSet(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.MSet(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}, SetOptions{}))

	got := sc.MGet(ctx, []string{"a", "b", "missing"})
	assert.Equal(t, []byte("1"), got["a"])
	assert.Equal(t, []byte("2"), got["b"])
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestSecureCacheStatsAndHealth(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()
	_, _ = sc.Get(ctx, "miss")
	require.NoError(t, sc.Set(ctx, "k", []byte("v"), SetOptions{}))
	_, _ = sc.Get(ctx, "k")

	stats := sc.GetStats()
	assert.GreaterOrEqual(t, stats.TotalOps, int64(2))

	health, _ := sc.GetHealth()
	assert.Equal(t, HealthHealthy, health)
}

func TestTagIndexFollowsLRUEviction(t *testing.T) {
	cfg := &config.CacheConfig{
		Strategy: "memory",
		Memory:   config.MemoryCacheConfig{MaxEntries: 1},
	}
	sc, err := New(cfg, &crypto.StubProvider{}, make([]byte, crypto.AEADKeySize))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "a", []byte("1"), SetOptions{Tags: []string{"grp"}}))
	require.NoError(t, sc.Set(ctx, "b", []byte("2"), SetOptions{Tags: []string{"grp"}}))

	// "a" fell to the one-entry cap; its tag membership must fall with it.
	assert.Equal(t, []string{"b"}, sc.tagIndex.KeysForTags([]string{"grp"}))
	assert.Empty(t, sc.tagIndex.TagsOf("a"))
}

func TestTagIndexFollowsLazyExpiry(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "e", []byte("1"), SetOptions{TTL: 10 * time.Millisecond, Tags: []string{"grp"}}))
	time.Sleep(20 * time.Millisecond)

	_, ok := sc.Get(ctx, "e")
	assert.False(t, ok)
	assert.Empty(t, sc.tagIndex.TagsOf("e"))
	assert.Empty(t, sc.tagIndex.KeysForTags([]string{"grp"}))
}

func TestOverwriteWithoutTagsClearsOldTags(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "k", []byte("1"), SetOptions{Tags: []string{"grp"}}))
	require.NoError(t, sc.Set(ctx, "k", []byte("2"), SetOptions{}))

	assert.Empty(t, sc.tagIndex.TagsOf("k"))
	assert.Equal(t, 0, sc.InvalidateByTags(ctx, []string{"grp"}))
	v, ok := sc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
}

func TestEnvelopeFailureWithoutCompatIsAMiss(t *testing.T) {
	sc := newTestCache(t)

	// A value flagged encrypted whose payload is not a real envelope.
	raw := marshalFrame(frame{Encrypted: true, Payload: []byte("legacy-plaintext")})
	require.NoError(t, sc.memory.Set("k", raw, 0, nil))

	_, ok := sc.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestEnvelopeFailureWithCompatFallsThrough(t *testing.T) {
	sc := newTestCache(t)
	sc.compatFallback = true

	raw := marshalFrame(frame{Encrypted: true, Payload: []byte("legacy-plaintext")})
	require.NoError(t, sc.memory.Set("k", raw, 0, nil))

	v, ok := sc.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("legacy-plaintext"), v)
}

func TestIncrCounterKeepsWindowAnchor(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	n, reset1, err := sc.IncrCounter(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, reset2, err := sc.IncrCounter(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, reset1, reset2, "increments within a window must not move its reset")
}

func TestIncrCounterReanchorsAfterWindowElapses(t *testing.T) {
	sc := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := sc.IncrCounter(ctx, "c", 30*time.Millisecond)
		require.NoError(t, err)
	}
	time.Sleep(40 * time.Millisecond)

	// The old window is over; a blocked client must start fresh.
	n, _, err := sc.IncrCounter(ctx, "c", 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
