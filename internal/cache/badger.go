package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/nehonix/xypriss/internal/config"
)

// BadgerBackend is a second durable, single-node CacheBackend option on
// top of dgraph-io/badger.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens (creating if absent) the configured Badger store.
func NewBadgerBackend(cfg config.BadgerCacheConfig) (*BadgerBackend, error) {
	_ = os.MkdirAll(cfg.Directory, 0o755)
	valueDir := cfg.ValueDirectory
	if valueDir == "" {
		valueDir = cfg.Directory
	}
	_ = os.MkdirAll(valueDir, 0o755)

	opts := badger.DefaultOptions(cfg.Directory).WithValueDir(valueDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &CacheBackendError{Backend: "badger", Err: err}
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	found := true
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			out = append([]byte{}, v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, &CacheBackendError{Backend: "badger", Err: err}
	}
	return out, found, nil
}

func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return &CacheBackendError{Backend: "badger", Err: err}
	}
	return nil
}

func (b *BadgerBackend) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return &CacheBackendError{Backend: "badger", Err: err}
	}
	return nil
}

func (b *BadgerBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *BadgerBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			if ok, _ := filepath.Match(pattern, k); ok {
				out = append(out, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &CacheBackendError{Backend: "badger", Err: err}
	}
	return out, nil
}

func (b *BadgerBackend) Close() error { return b.db.Close() }
