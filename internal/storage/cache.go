// Package storage provides the tiered artifact persistence layer: local
// disk, a transient content cache, and durable remote storage with a public
// URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// ErrCacheMiss indicates no cached copy of the artifact exists.
var ErrCacheMiss = errors.New("artifact not in cache")

// ArtifactCache is the transient resilience tier for produced artifacts,
// keyed per job and kind with a fixed retention.
type ArtifactCache interface {
	Put(ctx context.Context, jobID string, kind domain.ArtifactKind, data []byte) error
	Get(ctx context.Context, jobID string, kind domain.ArtifactKind) ([]byte, error)
}

func cacheKey(jobID string, kind domain.ArtifactKind) string {
	return fmt.Sprintf("artifact:%s:%s", jobID, kind)
}

// RedisCache stores artifact bytes in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Put(ctx context.Context, jobID string, kind domain.ArtifactKind, data []byte) error {
	if err := c.client.Set(ctx, cacheKey(jobID, kind), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache artifact: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, jobID string, kind domain.ArtifactKind) ([]byte, error) {
	data, err := c.client.Get(ctx, cacheKey(jobID, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read cached artifact: %w", err)
	}
	return data, nil
}

// MemoryCache is the in-process fallback used when Redis is not configured.
type memoryCacheEntry struct {
	data      []byte
	createdAt time.Time
	expiresAt time.Time
}

type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryCacheEntry
	ttl        time.Duration
	maxEntries int
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{
		entries:    make(map[string]memoryCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func (c *MemoryCache) Put(_ context.Context, jobID string, kind domain.ArtifactKind, data []byte) error {
	now := time.Now().UTC()
	entry := memoryCacheEntry{
		data:      append([]byte(nil), data...),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[cacheKey(jobID, kind)] = entry
	return nil
}

func (c *MemoryCache) Get(_ context.Context, jobID string, kind domain.ArtifactKind) ([]byte, error) {
	key := cacheKey(jobID, kind)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, ErrCacheMiss
	}
	if time.Now().UTC().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.data...), nil
}

func (c *MemoryCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value memoryCacheEntry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.createdAt.Before(pairs[j].value.createdAt)
	})
	delete(c.entries, pairs[0].key)
}
