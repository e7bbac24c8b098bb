package cache

import (
	"context"
	"time"
)

// noopCache satisfies Cache without storing anything. Used when caching is
// disabled in config and as a safe default in tests: every Get is a miss, so
// callers always fall through to a full evaluation.
type noopCache struct{}

func NewNoop() Cache { return noopCache{} }

func (noopCache) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrCacheMiss }

func (noopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (noopCache) Delete(ctx context.Context, key string) error { return nil }

func (noopCache) DeletePattern(ctx context.Context, pattern string) error { return nil }
