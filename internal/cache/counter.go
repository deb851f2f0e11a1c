package cache

import (
	"context"
	"encoding/binary"
	"time"
)

// IncrCounter atomically increments the fixed-window counter stored at key
// and returns the new count plus the window's reset time (unix seconds).
// The counter value carries its own window-start anchor: once a window is
// open, later increments keep the original reset time and a TTL clamped to
// it, so a client that keeps hammering a limited key cannot perpetually
// renew the window and lock itself out past the window's natural end. A
// counter whose reset time has passed (or a missing/garbled one) opens a
// fresh window at count 1. It backs NetworkPlugins' distributed RateLimit
// sub-plugin via the RateLimitCounterStore interface, reusing SecureCache's
// per-key lock table rather than a bespoke locking scheme.
func (c *SecureCache) IncrCounter(ctx context.Context, key string, window time.Duration) (int64, int64, error) {
	unlock := c.locks.lock(key)
	defer unlock()

	now := time.Now()
	var n, resetNano int64
	if raw, ok := c.memory.Get(key); ok {
		if v, err := c.unwrap(raw); err == nil && len(v) == 16 {
			n = int64(binary.BigEndian.Uint64(v[:8]))
			resetNano = int64(binary.BigEndian.Uint64(v[8:]))
		}
	}
	if resetNano == 0 || now.UnixNano() >= resetNano {
		n = 0
		resetNano = now.Add(window).UnixNano()
	}
	n++

	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(n))
	binary.BigEndian.PutUint64(buf[8:], uint64(resetNano))
	wrapped, err := c.wrap(buf, false, false)
	if err != nil {
		return 0, 0, err
	}
	if err := c.memory.Set(key, wrapped, time.Duration(resetNano-now.UnixNano()), nil); err != nil {
		return 0, 0, err
	}
	return n, time.Unix(0, resetNano).Unix(), nil
}
