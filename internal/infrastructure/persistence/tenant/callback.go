// Package tenant scopes GORM statements on tenant-owned models to the current tenant.
//
// A model is tenant-owned when its schema has a tenant_id column. Creates stamp tenant_id
// from the for-tenant override or the context tenant, and fail with
// tenantctx.ErrMissingTenantContext when neither is present. Queries, row scans, updates
// and deletes are restricted to the current tenant and match nothing when no tenant is
// present, so reads fail closed while writes fail loudly.
//
// Raw SQL, and statements built with Table() instead of a model, are not scoped.
// Repositories always go through a model.
package tenant

import (
	"errors"
	"reflect"

	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Column is the tenant ownership column
const Column = "tenant_id"

const (
	settingOverride = "tenant:override"
	settingBypass   = "tenant:bypass"
)

var (
	// ErrTenantUpsert rejects ON CONFLICT ... UPDATE on tenant-owned tables, which would let
	// an insert overwrite a row owned by another tenant.
	ErrTenantUpsert = errors.New("upsert with update is not allowed on tenant-owned tables")
	// ErrUnsupportedCreate rejects creates from maps, which cannot be stamped reliably
	ErrUnsupportedCreate = errors.New("tenant-owned rows must be created from structs")
)

// matchNothing is the predicate used when a read has no tenant
var matchNothing = clause.Expr{SQL: "1 = 0"}

// Callback holds the GORM callbacks that enforce tenant scoping
type Callback struct {
	log *zap.Logger
}

// NewCallback creates the callbacks. Warnings about unscoped statements go to log.
func NewCallback(log *zap.Logger) *Callback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Callback{log: log.Named("tenant")}
}

// Register installs the callbacks on db
func (c *Callback) Register(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenant:create", c.beforeCreate); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenant:query", c.scope("query")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant:row", c.scope("row")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:update", c.beforeUpdate); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant:delete", c.scope("delete"))
}

func (c *Callback) field(db *gorm.DB) *schema.Field {
	if db.Statement.Schema == nil {
		return nil
	}
	return db.Statement.Schema.LookUpField(Column)
}

// current resolves the tenant for the statement: the override set by ForTenant wins over
// the context tenant.
func current(db *gorm.DB) (uint64, bool) {
	if v, ok := db.Get(settingOverride); ok {
		if id, ok := v.(uint64); ok {
			return id, true
		}
	}
	return tenantctx.Current(db.Statement.Context)
}

func bypassed(db *gorm.DB) bool {
	_, ok := db.Get(settingBypass)
	return ok
}

func (c *Callback) scope(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		c.applyFilter(db, op)
	}
}

func (c *Callback) beforeUpdate(db *gorm.DB) {
	if db.Error != nil || c.field(db) == nil {
		return
	}
	// ownership never changes after create
	db.Statement.Omits = append(db.Statement.Omits, Column)
	c.applyFilter(db, "update")
}

func (c *Callback) applyFilter(db *gorm.DB, op string) {
	if db.Error != nil || c.field(db) == nil || bypassed(db) {
		return
	}
	tenantID, ok := current(db)
	if !ok {
		logger.WithLogger(db.Statement.Context, c.log).Warn("Tenant-owned statement without tenant context",
			zap.String("entity", db.Statement.Schema.Table),
			zap.String("operation", op),
		)
		db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{matchNothing}})
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: Column}, Value: tenantID},
	}})
}

func (c *Callback) beforeCreate(db *gorm.DB) {
	f := c.field(db)
	if db.Error != nil || f == nil {
		return
	}
	if rejectsUpsert(db) {
		db.AddError(ErrTenantUpsert)
		return
	}

	tenantID, ok := current(db)
	ctx := db.Statement.Context
	stamp := func(rv reflect.Value) error {
		if _, zero := f.ValueOf(ctx, rv); !zero {
			return nil
		}
		if !ok {
			return tenantctx.ErrMissingTenantContext
		}
		return f.Set(ctx, rv, tenantID)
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stamp(reflect.Indirect(rv.Index(i))); err != nil {
				db.AddError(err)
				break
			}
		}
	case reflect.Struct:
		if err := stamp(rv); err != nil {
			db.AddError(err)
		}
	default:
		db.AddError(ErrUnsupportedCreate)
	}
	if db.Error != nil && errors.Is(db.Error, tenantctx.ErrMissingTenantContext) {
		logger.WithLogger(ctx, c.log).Warn("Create of tenant-owned entity without tenant context",
			zap.String("entity", db.Statement.Schema.Table),
		)
	}
}

func rejectsUpsert(db *gorm.DB) bool {
	c, ok := db.Statement.Clauses["ON CONFLICT"]
	if !ok {
		return false
	}
	oc, ok := c.Expression.(clause.OnConflict)
	return ok && (oc.UpdateAll || len(oc.DoUpdates) > 0)
}
