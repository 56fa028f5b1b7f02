package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys so that handlers and jobs run at most once
type IdempotencyStore interface {
	// MarkProcessed returns true if the key was newly marked, false if already processed
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}
