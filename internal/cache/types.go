package cache

import (
	"time"

	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// Config contains detection cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	// Timeout bounds every cache round trip; a slow cache counts as a miss.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CachedMatches is the stored form of one detector result
type CachedMatches struct {
	Category privacy.Category `json:"category"`
	Matches  []privacy.Match  `json:"matches"`
	CachedAt time.Time        `json:"cached_at"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Errors    int64   `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalKeys int64   `json:"total_keys"`
}
