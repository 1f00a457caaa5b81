// Package cache memoises detector results in Redis. Entries are keyed by a
// hash of the category and the text, so the original text is never stored
// as a key; the matched literals are stored as values and expire after the
// configured TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"go.uber.org/zap"
)

// DetectorCache stores detector results in Redis
type DetectorCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New connects to Redis and verifies the connection
func New(config *Config, logger *zap.Logger) (*DetectorCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	c := NewWithClient(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Detection cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

// NewWithClient wraps an existing client without checking it
func NewWithClient(client *redis.Client, config *Config, logger *zap.Logger) *DetectorCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectorCache{client: client, config: config, logger: logger}
}

// Ping tests the Redis connection
func (c *DetectorCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Wrap returns a detector that consults the cache before calling d
func (c *DetectorCache) Wrap(category privacy.Category, d privacy.Detector) privacy.Detector {
	return &cachedDetector{cache: c, category: category, next: d}
}

// WrapRegistry replaces every detector in reg with its cached version
func (c *DetectorCache) WrapRegistry(reg *privacy.Registry) error {
	for _, category := range reg.Categories() {
		d, _ := reg.Lookup(category)
		if err := reg.Replace(category, c.Wrap(category, d)); err != nil {
			return err
		}
	}
	return nil
}

type cachedDetector struct {
	cache    *DetectorCache
	category privacy.Category
	next     privacy.Detector
}

func (d *cachedDetector) Find(ctx context.Context, text string) ([]privacy.Match, error) {
	key := d.cache.key(d.category, text)

	if matches, ok := d.cache.get(ctx, key); ok {
		return matches, nil
	}

	matches, err := d.next.Find(ctx, text)
	if err != nil {
		return nil, err
	}
	d.cache.set(ctx, key, d.category, matches)
	return matches, nil
}

// get returns a cached result. Any failure is a miss.
func (c *DetectorCache) get(ctx context.Context, key string) ([]privacy.Match, bool) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var entry CachedMatches
	if err := json.Unmarshal(data, &entry); err != nil {
		c.errors.Add(1)
		c.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}

	c.hits.Add(1)
	return entry.Matches, true
}

func (c *DetectorCache) set(ctx context.Context, key string, category privacy.Category, matches []privacy.Match) {
	data, err := json.Marshal(CachedMatches{
		Category: category,
		Matches:  matches,
		CachedAt: time.Now().UTC(),
	})
	if err != nil {
		c.errors.Add(1)
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		c.errors.Add(1)
		c.logger.Warn("Failed to cache detector result", zap.String("category", string(category)), zap.Error(err))
	}
}

func (c *DetectorCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}

// key hashes category and text; the NUL separator keeps ("a", "bc") and
// ("ab", "c") apart.
func (c *DetectorCache) key(category privacy.Category, text string) string {
	h := sha256.New()
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("%s:det:%s:%s", c.config.KeyPrefix, category, hex.EncodeToString(h.Sum(nil)))
}

// Stats returns cache performance statistics
func (c *DetectorCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := c.scan(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalKeys = int64(len(keys))
	return stats, nil
}

func (c *DetectorCache) scan(ctx context.Context) ([]string, error) {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":det:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return keys, nil
}

// Clear removes all cached detector results
func (c *DetectorCache) Clear(ctx context.Context) error {
	keys, err := c.scan(ctx)
	if err != nil {
		return err
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *DetectorCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL hides the password of a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
