// Package cache provides TTL key-value storage for cross-request
// auth-database lookup caching.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("cache: key not found")
	ErrClosed   = errors.New("cache: closed")
)

// DefaultLookupTTL bounds lookup-cache entries when the configuration
// does not set one. It also bounds revocation latency: a deleted user
// may keep authenticating for at most this long.
const DefaultLookupTTL = 30 * time.Second

// Cache provides TTL-based key-value storage. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound when absent
	// or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL stores with
	// the driver's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}
