package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// Cache stores scored recommendation sets per content item. Only scorer
// output is cached; inventory is always joined live.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.RecommendationItem, bool, error)
	Set(ctx context.Context, key string, items []models.RecommendationItem, ttl time.Duration) error
}

// Connect initializes a Redis client from a redis:// URL or a host:port address
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisCache keeps recommendation sets in Redis with a per-key expiry
type RedisCache struct {
	client *redis.Client
	prefix string
}

// Ensure RedisCache implements Cache
var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a RedisCache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "recs:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.RecommendationItem, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []models.RecommendationItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("decode cached recommendations %s: %w", key, err)
	}
	return items, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, items []models.RecommendationItem, ttl time.Duration) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is an in-process Cache used when Redis is not configured
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.RecommendationItem, bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !c.now().Before(entry.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	var items []models.RecommendationItem
	if err := json.Unmarshal(entry.data, &items); err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, items []models.RecommendationItem, ttl time.Duration) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{data: data, expires: c.now().Add(ttl)}
	return nil
}
