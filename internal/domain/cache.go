package domain

import (
	"context"
	"time"
)

// Cache defines the read-through cache used for risk profiles and
// regulation records. Mutable compliance state is never cached; writers
// must invalidate explicitly with Delete.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetProfile retrieves a cached risk profile.
	GetProfile(ctx context.Context, productID string) (*RiskProfile, error)

	// SetProfile caches a risk profile for assessment reads.
	SetProfile(ctx context.Context, productID string, p *RiskProfile, ttl time.Duration) error

	// GetRegulation retrieves a cached regulation record.
	GetRegulation(ctx context.Context, categoryID, countryID string) (*Regulation, error)

	// SetRegulation caches a regulation record.
	SetRegulation(ctx context.Context, categoryID, countryID string, r *Regulation, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for renter booking-velocity signals.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache key prefixes.
const (
	CacheKeyProfile    = "profile:"
	CacheKeyRegulation = "regulation:"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
