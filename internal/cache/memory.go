package cache

import (
	"container/list"
	"path/filepath"
	"sync"
	"time"
)

// memEntry is one MemoryBackend slot.
type memEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	expiresAt time.Time // zero means no TTL
	sizeBytes int
	elem      *list.Element
}

// MemoryBackend is the always-present memory tier: fixed-capacity
// (bytes and entry count), LRU eviction on insert overflow, lazy expiry on
// access plus a periodic sweep.
type MemoryBackend struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int
	curBytes   int64

	entries map[string]*memEntry
	order   *list.List // front = most recently used

	// onEvict is invoked for every key removed by LRU overflow, lazy
	// expiry, the periodic sweep, or Delete, so the owner can keep
	// derived structures (the tag index) in step with this tier.
	onEvict func(key string)

	stopSweep chan struct{}
}

// NewMemoryBackend constructs a MemoryBackend and starts its expiry sweep.
// onEvict may be nil.
func NewMemoryBackend(maxBytes int64, maxEntries int, onEvict func(key string)) *MemoryBackend {
	m := &MemoryBackend{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		entries:    make(map[string]*memEntry),
		order:      list.New(),
		onEvict:    onEvict,
		stopSweep:  make(chan struct{}),
	}
	go m.sweepLoop(60 * time.Second)
	return m
}

func (m *MemoryBackend) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

// Stop halts the background expiry sweep.
func (m *MemoryBackend) Stop() { close(m.stopSweep) }

func (m *MemoryBackend) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			m.removeLocked(k)
		}
	}
}

// Get returns the raw stored bytes, refreshing LRU position. Expired
// entries are never returned even if still present.
func (m *MemoryBackend) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.removeLocked(key)
		return nil, false
	}
	m.order.MoveToFront(e.elem)
	return e.value, true
}

// Set stores value under key with an optional TTL, evicting LRU entries
// until the new entry fits. A single entry exceeding total capacity is
// rejected.
func (m *MemoryBackend) Set(key string, value []byte, ttl time.Duration, tags []string) error {
	size := int64(len(value))
	if m.maxBytes > 0 && size > m.maxBytes {
		return &CacheSerializationError{Err: errEntryTooLarge}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[key]; ok {
		m.curBytes -= int64(old.sizeBytes)
		m.order.Remove(old.elem)
		delete(m.entries, key)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	e := &memEntry{
		key:       key,
		value:     value,
		createdAt: time.Now(),
		expiresAt: expiresAt,
		sizeBytes: len(value),
	}
	e.elem = m.order.PushFront(e)
	m.entries[key] = e
	m.curBytes += size

	for (m.maxBytes > 0 && m.curBytes > m.maxBytes) || (m.maxEntries > 0 && len(m.entries) > m.maxEntries) {
		back := m.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*memEntry)
		if victim.key == key {
			break
		}
		m.removeLocked(victim.key)
	}

	return nil
}

// Delete removes key unconditionally.
func (m *MemoryBackend) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
}

func (m *MemoryBackend) removeLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	m.order.Remove(e.elem)
	m.curBytes -= int64(e.sizeBytes)
	delete(m.entries, key)
	if m.onEvict != nil {
		m.onEvict(key)
	}
}

// Exists reports presence without refreshing LRU order.
func (m *MemoryBackend) Exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	return e.expiresAt.IsZero() || time.Now().Before(e.expiresAt)
}

// TTL returns remaining seconds: -1 if no TTL, -2 if absent.
func (m *MemoryBackend) TTL(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return -2
	}
	if e.expiresAt.IsZero() {
		return -1
	}
	remaining := time.Until(e.expiresAt)
	if remaining < 0 {
		return -2
	}
	return int64(remaining.Seconds())
}

// Expire sets a new TTL on an existing key; returns false if absent.
func (m *MemoryBackend) Expire(key string, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	e.expiresAt = time.Now().Add(d)
	return true
}

// KeysMatching returns every key matching a glob-style pattern (`*`, `?`).
func (m *MemoryBackend) KeysMatching(pattern string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pattern == "" {
		pattern = "*"
	}
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if ok, _ := filepath.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out
}

type entryTooLargeError struct{}

func (entryTooLargeError) Error() string { return "cache: entry exceeds memory-tier capacity" }

var errEntryTooLarge = entryTooLargeError{}
