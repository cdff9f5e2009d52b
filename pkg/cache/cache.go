// Package cache provides the byte-level cache used by registry clients.
//
// Registry responses are cached under keys built by a [Keyer] so that
// repeated extraction runs (and failed decodes, cached as a sentinel) do not
// hit the upstream registry again until the entry expires.
//
// Backends:
//   - [FileCache]: one JSON file per key, for CLI runs on a single host
//   - [RedisCache]: shared cache for workers and the API server
//   - [NullCache]: disables caching
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte payloads with an optional time-to-live.
//
// Get reports a miss as (nil, false, nil). A ttl of zero means the entry
// never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by caches that can drop every entry they hold.
type Clearer interface {
	Clear(ctx context.Context) (int, error)
}
