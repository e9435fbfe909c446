package relorm

import (
	"context"
	"time"
)

// Cache is the interface for storing serialized metadata between processes,
// such as catalog snapshots.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error
}

// CacheKey generates a cache key for a catalog snapshot.
type CacheKey struct {
	Dialect  string
	Database string
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return "relorm:catalog:" + k.Dialect + ":" + k.Database
}
