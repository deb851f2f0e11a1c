package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nehonix/xypriss/internal/config"
)

// entryRecord is BBolt/Badger's on-disk value shape: the raw frame bytes
// plus an expiry so TTL survives outside the memory tier's in-process
// index.
type entryRecord struct {
	expiresAt int64 // unix nanos, 0 means no TTL
	payload   []byte
}

func encodeRecord(r entryRecord) []byte {
	out := make([]byte, 8, 8+len(r.payload))
	putInt64(out[:8], r.expiresAt)
	return append(out, r.payload...)
}

func decodeRecord(b []byte) (entryRecord, bool) {
	if len(b) < 8 {
		return entryRecord{}, false
	}
	exp := getInt64(b[:8])
	return entryRecord{expiresAt: exp, payload: b[8:]}, true
}

func putInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getInt64(b []byte) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}

func (r entryRecord) expired(now time.Time) bool {
	return r.expiresAt != 0 && now.UnixNano() > r.expiresAt
}

// BBoltBackend is a durable, single-node CacheBackend on top of
// go.etcd.io/bbolt.
type BBoltBackend struct {
	db     *bolt.DB
	bucket []byte
}

// NewBBoltBackend opens (creating if absent) the configured BBolt file and
// bucket.
func NewBBoltBackend(cfg config.BBoltCacheConfig) (*BBoltBackend, error) {
	if dir := filepath.Dir(cfg.Filename); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	db, err := bolt.Open(cfg.Filename, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, &CacheBackendError{Backend: "bbolt", Err: err}
	}
	bucket := []byte(cfg.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, &CacheBackendError{Backend: "bbolt", Err: err}
	}
	return &BBoltBackend{db: db, bucket: bucket}, nil
}

func (b *BBoltBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var rec entryRecord
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		r, ok := decodeRecord(v)
		if !ok {
			return nil
		}
		rec, found = r, true
		return nil
	})
	if err != nil {
		return nil, false, &CacheBackendError{Backend: "bbolt", Err: err}
	}
	if !found || rec.expired(time.Now()) {
		return nil, false, nil
	}
	return rec.payload, true, nil
}

func (b *BBoltBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}
	rec := encodeRecord(entryRecord{expiresAt: expiresAt, payload: value})
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), rec)
	})
	if err != nil {
		return &CacheBackendError{Backend: "bbolt", Err: err}
	}
	return nil
}

func (b *BBoltBackend) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
	if err != nil {
		return &CacheBackendError{Backend: "bbolt", Err: err}
	}
	return nil
}

func (b *BBoltBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *BBoltBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(k, v []byte) error {
			if ok, _ := filepath.Match(pattern, string(k)); ok {
				out = append(out, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, &CacheBackendError{Backend: "bbolt", Err: err}
	}
	return out, nil
}

func (b *BBoltBackend) Close() error { return b.db.Close() }
