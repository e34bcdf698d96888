package geoip

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"funnelpulse/api/models"
)

// Cache stores resolved descriptors keyed by IP so each visitor is looked
// up at most once per retention window.
type Cache interface {
	Get(ctx context.Context, ip string) (models.Geolocation, bool)
	Set(ctx context.Context, ip string, geo models.Geolocation)
}

// MemoryCache is the default single-process cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.Geolocation
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.Geolocation)}
}

func (c *MemoryCache) Get(_ context.Context, ip string) (models.Geolocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	geo, ok := c.entries[ip]
	return geo, ok
}

func (c *MemoryCache) Set(_ context.Context, ip string, geo models.Geolocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = geo
}

const redisCacheTTL = 24 * time.Hour

// RedisCache shares descriptors across API instances. Redis errors are
// logged and treated as cache misses; the resolver always has a fallback.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) key(ip string) string {
	return "geoip:" + ip
}

func (c *RedisCache) Get(ctx context.Context, ip string) (models.Geolocation, bool) {
	data, err := c.client.Get(ctx, c.key(ip)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("geoip: redis get failed for %s: %v", ip, err)
		}
		return models.Geolocation{}, false
	}

	var geo models.Geolocation
	if err := json.Unmarshal(data, &geo); err != nil {
		log.Printf("geoip: corrupt cache entry for %s: %v", ip, err)
		return models.Geolocation{}, false
	}
	return geo, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, geo models.Geolocation) {
	data, err := json.Marshal(geo)
	if err != nil {
		log.Printf("geoip: marshal cache entry for %s: %v", ip, err)
		return
	}
	if err := c.client.Set(ctx, c.key(ip), data, redisCacheTTL).Err(); err != nil {
		log.Printf("geoip: redis set failed for %s: %v", ip, err)
	}
}
