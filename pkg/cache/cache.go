package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present. Callers treat a miss as
// "go evaluate", never as a failure.
var ErrCacheMiss = errors.New("cache: miss")

// Cache is the shared caching surface for decision results and other
// short-lived lookups. Values are stored as JSON-encoded bytes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob-style pattern, e.g.
	// "authz:decision:u42:*". Used for per-user invalidation after a role
	// assignment.
	DeletePattern(ctx context.Context, pattern string) error
}
