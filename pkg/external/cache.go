package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
)

const verdictKeyPrefix = "gravilog:verdict:"

// CacheClient caches reasoning verdicts in memory and, when a Redis URL is
// configured, in Redis as a second tier shared between processes.
type CacheClient struct {
	memory *expirable.LRU[string, domain.AIVerdict]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// CachedVerdict is the Redis representation of a cached verdict.
type CachedVerdict struct {
	Verdict  domain.AIVerdict `json:"verdict"`
	CachedAt time.Time        `json:"cached_at"`
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig, logger *logrus.Logger) (*CacheClient, error) {
	if config.LRUSize <= 0 {
		config.LRUSize = 1000
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	c := &CacheClient{
		memory: expirable.NewLRU[string, domain.AIVerdict](config.LRUSize, nil, config.TTL),
		ttl:    config.TTL,
		logger: logger,
	}

	if config.RedisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.redis = client
	return c, nil
}

// Get returns a cached verdict. Redis hits are promoted to memory.
func (c *CacheClient) Get(ctx context.Context, key string) (domain.AIVerdict, bool) {
	if v, ok := c.memory.Get(key); ok {
		return v, true
	}
	if c.redis == nil {
		return domain.AIVerdict{}, false
	}

	val, err := c.redis.Get(ctx, verdictKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.AIVerdict{}, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read verdict cache")
		return domain.AIVerdict{}, false
	}

	var cached CachedVerdict
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// corrupted entry
		c.redis.Del(ctx, verdictKeyPrefix+key)
		return domain.AIVerdict{}, false
	}

	c.memory.Add(key, cached.Verdict)
	return cached.Verdict, true
}

// Set stores a verdict in both tiers. Redis failures are logged only.
func (c *CacheClient) Set(ctx context.Context, key string, verdict domain.AIVerdict) {
	c.memory.Add(key, verdict)
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(CachedVerdict{Verdict: verdict, CachedAt: time.Now().UTC()})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode verdict for cache")
		return
	}
	if err := c.redis.Set(ctx, verdictKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to write verdict cache")
	}
}

// Len returns the number of verdicts held in memory.
func (c *CacheClient) Len() int {
	return c.memory.Len()
}

// Ping checks the Redis tier, if any.
func (c *CacheClient) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	c.memory.Purge()
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// CacheKey hashes the parts of a request into a cache key.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
