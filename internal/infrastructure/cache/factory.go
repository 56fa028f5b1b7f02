package cache

import (
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore returns a Redis-backed store when client is set, otherwise an
// in-memory one
func NewIdempotencyStore(client *redis.Client, log *zap.Logger) shared.IdempotencyStore {
	if log == nil {
		log = zap.NewNop()
	}
	if client != nil {
		log.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(client, "")
	}
	log.Warn("Redis disabled, using in-memory idempotency store; duplicates are only detected within this process")
	return NewInMemoryIdempotencyStore()
}
