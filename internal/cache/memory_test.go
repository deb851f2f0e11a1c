package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendSetGet(t *testing.T) {
	m := NewMemoryBackend(0, 0, nil)
	defer m.Stop()

	require.NoError(t, m.Set("a", []byte("1"), 0, nil))
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}

func TestMemoryBackendTTLExpiry(t *testing.T) {
	m := NewMemoryBackend(0, 0, nil)
	defer m.Stop()

	require.NoError(t, m.Set("a", []byte("1"), 10*time.Millisecond, nil))
	assert.Equal(t, int64(-2), m.TTL("nonexistent"))
	time.Sleep(30 * time.Millisecond)
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestMemoryBackendLRUEviction(t *testing.T) {
	m := NewMemoryBackend(0, 2, nil)
	defer m.Stop()

	require.NoError(t, m.Set("a", []byte("1"), 0, nil))
	require.NoError(t, m.Set("b", []byte("2"), 0, nil))
	_, _ = m.Get("a") // refresh a's LRU position
	require.NoError(t, m.Set("c", []byte("3"), 0, nil))

	_, aok := m.Get("a")
	_, bok := m.Get("b")
	_, cok := m.Get("c")
	assert.True(t, aok)
	assert.False(t, bok, "b should have been evicted as least-recently-used")
	assert.True(t, cok)
}

func TestMemoryBackendEntryTooLarge(t *testing.T) {
	m := NewMemoryBackend(4, 0, nil)
	defer m.Stop()
	err := m.Set("a", []byte("too big for four bytes"), 0, nil)
	assert.Error(t, err)
}

func TestMemoryBackendTTLAbsent(t *testing.T) {
	m := NewMemoryBackend(0, 0, nil)
	defer m.Stop()
	assert.Equal(t, int64(-2), m.TTL("missing"))
}

func TestMemoryBackendKeysMatching(t *testing.T) {
	m := NewMemoryBackend(0, 0, nil)
	defer m.Stop()
	require.NoError(t, m.Set("user:1", []byte("a"), 0, nil))
	require.NoError(t, m.Set("user:2", []byte("b"), 0, nil))
	require.NoError(t, m.Set("product:1", []byte("c"), 0, nil))

	keys := m.KeysMatching("user:*")
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)
}
