// Package cache stores short-lived analytics results in process memory or Redis.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a byte-oriented key/value cache with expiry.
type Cache interface {
	// Get returns nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	// Type is "memory", "redis" or "none".
	Type          string
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New creates a cache based on configuration. Type "none" returns a nil cache.
func New(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryCache(cfg.MaxEntries), nil
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
