// Package cache implements SecureCache: a layered cache
// (memory tier always present, optional distributed tier) with TTL, tag
// invalidation, compression, and AEAD encryption. Storage tiers plug in
// behind the CacheBackend interface.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/crypto"
	"github.com/nehonix/xypriss/internal/util/log"
	"github.com/nehonix/xypriss/internal/util/metrics"
	"github.com/nehonix/xypriss/internal/util/tracing"

	"context"
)

// Strategy selects which tier(s) SecureCache consults.
type Strategy string

const (
	StrategyMemory Strategy = "memory"
	StrategyRedis  Strategy = "redis"
	StrategyHybrid Strategy = "hybrid"
	StrategyAuto   Strategy = "auto"
	StrategyBBolt  Strategy = "bbolt"
	StrategyBadger Strategy = "badger"
)

// HealthStatus reports SecureCache's degraded/healthy state.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// CacheSerializationError is raised when a value cannot be serialized, or
// when a single entry exceeds total memory-tier capacity.
type CacheSerializationError struct{ Err error }

func (e *CacheSerializationError) Error() string {
	return fmt.Sprintf("cache: serialization: %v", e.Err)
}
func (e *CacheSerializationError) Unwrap() error { return e.Err }

// CacheBackendError wraps a distributed-tier failure.
type CacheBackendError struct {
	Backend string
	Err     error
}

func (e *CacheBackendError) Error() string {
	return fmt.Sprintf("cache: backend %s: %v", e.Backend, e.Err)
}
func (e *CacheBackendError) Unwrap() error { return e.Err }

// ErrNotFound reports a missing key. CacheBackend.Get does not return it: a
// miss there is reported as ok == false with a nil error.
var ErrNotFound = errors.New("cache: key not found")

// SetOptions configures one Set call.
type SetOptions struct {
	TTL      time.Duration
	Tags     []string
	Compress *bool
	Encrypt  *bool
}

// CacheBackend is the minimal capability surface a storage tier presents:
// Get, Set, Delete, Exists, Keys.
type CacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// SecureCache is the layered cache orchestrator.
type SecureCache struct {
	mu sync.RWMutex

	strategy Strategy
	memory   *MemoryBackend
	distrib  CacheBackend // nil unless strategy uses a distributed tier

	provider  crypto.Provider
	masterKey []byte

	encryptDefault  bool
	compressDefault bool
	compatFallback  bool

	tagIndex *TagIndex
	locks    *keyLockTable

	stats  *Stats
	health HealthStatus

	asyncDistributedWrites bool
}

// New constructs a SecureCache from the given cache configuration section,
// wiring in the CryptoProvider and the caller-supplied master key. A key
// that is not exactly AEADKeySize bytes is stretched to that size with the
// provider's KDF.
func New(cfg *config.CacheConfig, provider crypto.Provider, masterKey []byte) (*SecureCache, error) {
	if provider == nil {
		provider = crypto.NewStdProvider()
	}
	if len(masterKey) != crypto.AEADKeySize {
		derived, err := provider.KDF(masterKey, []byte("xypriss-cache-master-salt"), crypto.MinKDFIterations, crypto.AEADKeySize)
		if err != nil {
			return nil, err
		}
		masterKey = derived
	}

	// Every removal from the memory tier — LRU overflow, lazy expiry, the
	// periodic sweep — must drop the key's tag memberships with it, or the
	// tag index leaks entries for keys that no longer exist.
	tagIndex := NewTagIndex()
	sc := &SecureCache{
		strategy:               Strategy(cfg.Strategy),
		memory:                 NewMemoryBackend(cfg.Memory.MaxSize, cfg.Memory.MaxEntries, tagIndex.Detach),
		provider:               provider,
		masterKey:              masterKey,
		encryptDefault:         cfg.EnableEncryption,
		compressDefault:        cfg.EnableCompression,
		compatFallback:         cfg.CompatFallback,
		tagIndex:               tagIndex,
		locks:                  newKeyLockTable(),
		stats:                  NewStats(),
		health:                 HealthHealthy,
		asyncDistributedWrites: true,
	}

	switch sc.strategy {
	case StrategyRedis, StrategyHybrid:
		rb, err := NewRedisBackend(cfg.Redis)
		if err != nil {
			log.Warn("distributed cache tier unreachable at startup, degrading to memory-only", log.Pairs{"error": err.Error()})
			sc.health = HealthDegraded
		} else {
			sc.distrib = rb
		}
	case StrategyAuto:
		rb, err := NewRedisBackend(cfg.Redis)
		if err == nil {
			sc.distrib = rb
			sc.strategy = StrategyHybrid
		} else {
			sc.strategy = StrategyMemory
		}
	case StrategyBBolt:
		bb, err := NewBBoltBackend(cfg.BBolt)
		if err != nil {
			return nil, err
		}
		sc.distrib = bb
	case StrategyBadger:
		bg, err := NewBadgerBackend(cfg.Badger)
		if err != nil {
			return nil, err
		}
		sc.distrib = bg
	}

	return sc, nil
}

// Connect establishes the distributed tier's connection, if any. Idempotent;
// a no-op for memory-only strategy.
func (c *SecureCache) Connect(ctx context.Context) error {
	c.mu.RLock()
	d := c.distrib
	c.mu.RUnlock()
	if d == nil {
		return nil
	}
	if conn, ok := d.(interface{ Connect(context.Context) error }); ok {
		return conn.Connect(ctx)
	}
	return nil
}

// Disconnect tears down the distributed tier's connection, if any.
// Idempotent; a no-op for memory-only strategy.
func (c *SecureCache) Disconnect() error {
	c.mu.RLock()
	d := c.distrib
	c.mu.RUnlock()
	if d == nil {
		return nil
	}
	return d.Close()
}

// Get returns the stored value if present and unexpired; it never errors on
// a miss.
func (c *SecureCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, span := tracing.NewSpan(ctx, "SecureCache.Get", key)
	defer span.End()

	start := time.Now()
	v, ok, tier := c.get(ctx, key)
	c.stats.RecordOp(tier, "get", ok, time.Since(start))
	metrics.CacheOpsTotal.WithLabelValues(tier, "get", resultLabel(ok)).Inc()
	metrics.CacheLatency.WithLabelValues(tier, "get").Observe(time.Since(start).Seconds())
	return v, ok
}

func (c *SecureCache) get(ctx context.Context, key string) ([]byte, bool, string) {
	if raw, ok := c.memory.Get(key); ok {
		v, err := c.unwrap(raw)
		if err != nil {
			log.WarnOnce("envelope-decode:"+key, "failed to decode cache envelope, treating as miss", log.Pairs{"key": key, "error": err.Error()})
			return nil, false, "memory"
		}
		return v, true, "memory"
	}
	if c.strategy == StrategyMemory || c.distrib == nil {
		return nil, false, "memory"
	}

	raw, ok, err := c.distrib.Get(ctx, key)
	if err != nil {
		c.degrade(err)
		return nil, false, "distributed"
	}
	if !ok {
		return nil, false, "distributed"
	}
	v, err := c.unwrap(raw)
	if err != nil {
		return nil, false, "distributed"
	}
	// Promote to memory tier on a hybrid hit.
	c.memory.Set(key, raw, 0, nil)
	return v, true, "distributed"
}

// Set serializes, optionally compresses and encrypts, then stores value
// under key.
func (c *SecureCache) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	ctx, span := tracing.NewSpan(ctx, "SecureCache.Set", key)
	defer span.End()

	start := time.Now()
	compress := c.compressDefault
	if opts.Compress != nil {
		compress = *opts.Compress
	}
	encrypt := c.encryptDefault
	if opts.Encrypt != nil {
		encrypt = *opts.Encrypt
	}

	raw, err := c.wrap(value, compress, encrypt)
	if err != nil {
		return err
	}

	// The per-key lock covers only the in-memory mutation (entry plus tag
	// membership) and is released before any distributed-tier I/O.
	unlock := c.locks.lock(key)
	if err := c.memory.Set(key, raw, opts.TTL, opts.Tags); err != nil {
		unlock()
		return err
	}
	c.tagIndex.Attach(key, opts.Tags)
	unlock()

	if c.distrib != nil && (c.strategy == StrategyHybrid || c.strategy == StrategyRedis || c.strategy == StrategyBBolt || c.strategy == StrategyBadger) {
		write := func() {
			if err := c.distrib.Set(ctx, key, raw, opts.TTL); err != nil {
				c.degrade(err)
			}
		}
		if c.asyncDistributedWrites && (c.strategy == StrategyHybrid) {
			c.stats.PendingWrites.Add(1)
			go func() {
				defer c.stats.PendingWrites.Add(-1)
				write()
			}()
		} else {
			write()
		}
	}

	metrics.CacheOpsTotal.WithLabelValues("memory", "set", "ok").Inc()
	metrics.CacheLatency.WithLabelValues("memory", "set").Observe(time.Since(start).Seconds())
	return nil
}

// Delete removes key from every tier and prunes it from the tag index.
func (c *SecureCache) Delete(ctx context.Context, key string) error {
	c.memory.Delete(key)
	c.tagIndex.Detach(key)
	if c.distrib != nil {
		if err := c.distrib.Delete(ctx, key); err != nil {
			c.degrade(err)
			return err
		}
	}
	return nil
}

// Exists reports whether key is present (and unexpired) in any tier.
func (c *SecureCache) Exists(ctx context.Context, key string) bool {
	if c.memory.Exists(key) {
		return true
	}
	if c.distrib == nil {
		return false
	}
	ok, err := c.distrib.Exists(ctx, key)
	if err != nil {
		c.degrade(err)
		return false
	}
	return ok
}

// TTL returns the remaining seconds for key: -1 if it exists with no TTL,
// -2 if absent.
func (c *SecureCache) TTL(key string) int64 {
	return c.memory.TTL(key)
}

// Expire sets a new TTL on an existing key.
func (c *SecureCache) Expire(key string, seconds int64) bool {
	return c.memory.Expire(key, time.Duration(seconds)*time.Second)
}

// Keys returns all memory-tier keys matching a glob-style pattern
// (`*`, `?`); documented as an expensive operation.
func (c *SecureCache) Keys(pattern string) []string {
	return c.memory.KeysMatching(pattern)
}

// MGet returns every present key's value, omitting misses.
func (c *SecureCache) MGet(ctx context.Context, keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out
}

// MSet stores every entry with the same options.
func (c *SecureCache) MSet(ctx context.Context, entries map[string][]byte, opts SetOptions) error {
	for k, v := range entries {
		if err := c.Set(ctx, k, v, opts); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateByTags removes every key referenced by any supplied tag at the
// moment the tag index is read, and returns the number of keys it found.
// The removal is not atomic: the keys are deleted one at a time, so a key
// tagged by a Set that runs concurrently with the call can survive it.
func (c *SecureCache) InvalidateByTags(ctx context.Context, tags []string) int {
	keys := c.tagIndex.KeysForTags(tags)
	for _, k := range keys {
		_ = c.Delete(ctx, k)
	}
	return len(keys)
}

// GetStats returns a snapshot of cache statistics.
func (c *SecureCache) GetStats() StatsSnapshot {
	return c.stats.Snapshot()
}

// GetHealth reports the cache's current health.
func (c *SecureCache) GetHealth() (HealthStatus, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.health == HealthDegraded {
		return c.health, "distributed tier unreachable, serving memory-only"
	}
	return c.health, ""
}

func (c *SecureCache) degrade(err error) {
	c.mu.Lock()
	c.health = HealthDegraded
	c.mu.Unlock()
	log.Warn("distributed cache tier operation failed", log.Pairs{"error": err.Error()})
}

func resultLabel(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}
