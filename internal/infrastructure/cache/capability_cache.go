package cache

import (
	"context"
	"sync"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// Broadcaster fans tenant invalidations out to other instances
type Broadcaster interface {
	Broadcast(ctx context.Context, tenantID uint64) error
	Listen(ctx context.Context, fn func(tenantID uint64)) error
}

// CapabilityCache holds resolved usage capabilities per tenant for a short TTL. When a
// broadcaster is set, invalidations also reach every other instance.
//
// Every invalidation bumps the tenant's version. Store only accepts a snapshot read at the
// current version, so a read that overlapped an invalidation is never cached.
type CapabilityCache struct {
	entries     *TTLCache[uint64, *billing.UsageCapabilities]
	broadcaster Broadcaster
	logger      *zap.Logger

	mu       sync.Mutex
	versions map[uint64]uint64
}

// NewCapabilityCache creates a cache with the given TTL; broadcaster may be nil
func NewCapabilityCache(ttl time.Duration, broadcaster Broadcaster, log *zap.Logger) *CapabilityCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &CapabilityCache{
		entries:     NewTTLCache[uint64, *billing.UsageCapabilities](ttl),
		broadcaster: broadcaster,
		logger:      log.Named("capability_cache"),
		versions:    make(map[uint64]uint64),
	}
}

func (c *CapabilityCache) Get(_ context.Context, tenantID uint64) (*billing.UsageCapabilities, bool) {
	return c.entries.Get(tenantID)
}

// Version returns the tenant's invalidation counter. Capture it before reading usage.
func (c *CapabilityCache) Version(_ context.Context, tenantID uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[tenantID]
}

// Store caches caps if no invalidation happened since version was captured
func (c *CapabilityCache) Store(_ context.Context, tenantID, version uint64, caps *billing.UsageCapabilities) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[tenantID] != version {
		return false
	}
	c.entries.Set(tenantID, caps)
	return true
}

// Set caches caps at the current version
func (c *CapabilityCache) Set(_ context.Context, tenantID uint64, caps *billing.UsageCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Set(tenantID, caps)
}

func (c *CapabilityCache) drop(tenantID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[tenantID]++
	c.entries.Delete(tenantID)
}

// Invalidate drops the tenant locally and broadcasts the drop. Broadcast errors are logged;
// remote entries then age out with the TTL.
func (c *CapabilityCache) Invalidate(ctx context.Context, tenantID uint64) {
	c.drop(tenantID)
	if c.broadcaster == nil {
		return
	}
	if err := c.broadcaster.Broadcast(ctx, tenantID); err != nil {
		c.logger.Warn("Failed to broadcast capability invalidation",
			zap.Uint64("tenant_id", tenantID),
			zap.Error(err),
		)
	}
}

// Listen applies remote invalidations until ctx is done. It blocks.
func (c *CapabilityCache) Listen(ctx context.Context) error {
	if c.broadcaster == nil {
		<-ctx.Done()
		return nil
	}
	return c.broadcaster.Listen(ctx, c.drop)
}
