package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nehonix/xypriss/internal/config"
)

// RedisBackend is the distributed tier's `redis`/`hybrid` CacheBackend,
// backed by go-redis/redis/v8.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend dials Redis per cfg and verifies reachability with a PING,
// so SecureCache can fall back to memory-only at construction time if the
// endpoint is unreachable.
func NewRedisBackend(cfg config.RedisCacheConfig) (*RedisBackend, error) {
	var client redis.UniversalClient
	if cfg.Cluster && len(cfg.Nodes) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Nodes,
			Password: cfg.Password,
		})
	} else {
		addr := cfg.Host
		if cfg.Port != 0 && !strings.Contains(addr, ":") {
			addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &CacheBackendError{Backend: "redis", Err: err}
	}

	return &RedisBackend{client: client}, nil
}

func (r *RedisBackend) Connect(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CacheBackendError{Backend: "redis", Err: err}
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return &CacheBackendError{Backend: "redis", Err: err}
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return &CacheBackendError{Backend: "redis", Err: err}
	}
	return nil
}

func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, &CacheBackendError{Backend: "redis", Err: err}
	}
	return n > 0, nil
}

func (r *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, &CacheBackendError{Backend: "redis", Err: err}
	}
	return out, nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }
