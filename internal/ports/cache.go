package ports

import (
	"context"
	"time"
)

// Cache is a small key-value store for operational markers such as the
// scheduler heartbeat. A zero ttl keeps the value until it is overwritten.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
