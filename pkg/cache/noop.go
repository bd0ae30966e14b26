package cache

import (
	"context"
	"time"
)

// NoopCache satisfies Cache while doing nothing. Services fall back to it
// when Redis is unavailable at startup so the pipeline degrades instead of
// failing.
type NoopCache struct{}

// NewNoopCache creates a disabled cache.
func NewNoopCache() *NoopCache { return &NoopCache{} }

func (n *NoopCache) Get(ctx context.Context, ns Namespace, key string, dest interface{}) bool {
	return false
}

func (n *NoopCache) Set(ctx context.Context, ns Namespace, key string, value interface{}, ttl time.Duration) {
}

func (n *NoopCache) Delete(ctx context.Context, ns Namespace, key string) error { return nil }

func (n *NoopCache) HealthCheck(ctx context.Context) (Status, error) {
	return StatusDisabled, nil
}

func (n *NoopCache) Close() error { return nil }
