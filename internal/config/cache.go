package config

import "time"

// CacheConfig configures the persistent result tier.
type CacheConfig struct {
	PersistPath string `yaml:"persist_path"` // empty = memory only
	MaxAge      string `yaml:"max_age"`      // prune entries unread for this long
}

// CacheMaxAge returns how long an unread persisted result is kept.
func (c *Config) CacheMaxAge() time.Duration {
	return parseDuration(c.Cache.MaxAge, 7*24*time.Hour)
}
