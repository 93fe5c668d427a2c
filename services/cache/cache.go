package cache

import (
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present
var ErrCacheMiss = errors.New("cache: miss")

// CacheService is a small expiring key-value store. It backs the
// per-source cooldown that keeps a persistently blocked source from
// being re-hammered across runs.
type CacheService interface {
	// Get retrieves a value; ErrCacheMiss when absent or expired
	Get(key string) ([]byte, error)

	// Set stores a value with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value
	Delete(key string) error
}
