package tenant

import (
	"context"
	"errors"

	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrBypassReasonRequired is returned when AcrossTenants is called without a reason
var ErrBypassReasonRequired = errors.New("a reason is required to query across tenants")

type txKey struct{}

// TenantDB is the only handle repositories use to reach the database. WithContext is the
// scoped default; ForTenant and AcrossTenants are the two audited ways out of it.
type TenantDB struct {
	db  *gorm.DB
	log *zap.Logger
}

// New registers the tenant callbacks on db and wraps it
func New(db *gorm.DB, log *zap.Logger) (*TenantDB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := NewCallback(log).Register(db); err != nil {
		return nil, err
	}
	return &TenantDB{db: db, log: log.Named("tenant")}, nil
}

// conn returns the transaction bound to ctx, or the pool
func (t *TenantDB) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return t.db.WithContext(ctx)
}

// WithContext returns a session scoped to the tenant in ctx
func (t *TenantDB) WithContext(ctx context.Context) *gorm.DB {
	return t.conn(ctx)
}

// ForTenant returns a session scoped to tenantID regardless of the context tenant.
// Creates without an explicit TenantID are stamped with tenantID. Overrides that leave the
// context tenant are logged at info, same-tenant ones at debug.
func (t *TenantDB) ForTenant(ctx context.Context, tenantID uint64) *gorm.DB {
	log := logger.WithLogger(ctx, t.log)
	if current, ok := tenantctx.Current(ctx); ok && current == tenantID {
		log.Debug("Tenant override", zap.Uint64("target_tenant_id", tenantID))
	} else {
		log.Info("Tenant override", zap.Uint64("target_tenant_id", tenantID))
	}
	return t.conn(ctx).Set(settingOverride, tenantID)
}

// AcrossTenants returns a session with the tenant filter disabled. It is reserved for
// system work that must locate rows before their tenant is known, and reason is logged.
func (t *TenantDB) AcrossTenants(ctx context.Context, reason string) (*gorm.DB, error) {
	if reason == "" {
		return nil, ErrBypassReasonRequired
	}
	logger.WithLogger(ctx, t.log).Info("Tenant filter bypassed", zap.String("reason", reason))
	return t.conn(ctx).Set(settingBypass, reason), nil
}

// Transaction runs fn in a transaction. Repositories called with the ctx passed to fn
// join the transaction. Nested calls reuse the outer transaction.
func (t *TenantDB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// DB returns the unwrapped handle for migrations and health checks
func (t *TenantDB) DB() *gorm.DB {
	return t.db
}
