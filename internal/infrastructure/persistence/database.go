package persistence

import (
	"errors"
	"fmt"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the configured database. Tenant scoping is installed separately by
// tenant.New so that migrations can run on an unscoped handle.
func Open(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.LogLevel), cfg.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// one writer; also keeps :memory: databases on a single connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Models lists every persisted model in migration order
func Models() []any {
	return []any{
		&identity.Tenant{},
		&identity.User{},
		&identity.Membership{},
		&prompt.Project{},
		&prompt.Prompt{},
		&prompt.Version{},
		&prompt.Run{},
		&prompt.TestCase{},
		&prompt.Feedback{},
		&provider.Credential{},
		&billing.UsageEvent{},
		&billing.MeteringFailure{},
		&billing.MeterSubscription{},
	}
}

// tenantUniqueIndexes pair tenant_id with a column of a tenant-owned table. The tenant
// column comes from the embedded shared.TenantOwned, so struct tags cannot name the index.
var tenantUniqueIndexes = []struct {
	name, table, column string
}{
	{"idx_provider_credentials_tenant_provider", "provider_credentials", "provider"},
	{"idx_meter_subscriptions_tenant_meter", "meter_subscriptions", "meter"},
}

// AutoMigrate creates or updates the schema for all models
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	for _, idx := range tenantUniqueIndexes {
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (tenant_id, %s)", idx.name, idx.table, idx.column)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// translate maps GORM errors onto domain errors
func translate(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewDomainError(shared.ErrNotFound.Code, entity+" not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewDomainError(shared.ErrAlreadyExists.Code, entity+" already exists")
	}
	return err
}

// affected turns a zero-row write into a not-found error
func affected(res *gorm.DB, entity string) error {
	if res.Error != nil {
		return translate(res.Error, entity)
	}
	if res.RowsAffected == 0 {
		return shared.NewDomainError(shared.ErrNotFound.Code, entity+" not found")
	}
	return nil
}

func paginate(q *gorm.DB, f shared.Filter) *gorm.DB {
	f = f.Normalize()
	return q.Offset(f.Offset()).Limit(f.PageSize)
}
