// Package persistencetest provides database fixtures for tests outside the persistence package.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewDB opens a migrated in-memory SQLite database with tenant scoping installed.
// The connection is closed when the test ends.
func NewDB(t *testing.T) *tenant.TenantDB {
	t.Helper()
	return NewDBWithLogger(t, zap.NewNop())
}

// NewDBWithLogger is NewDB with the tenant callbacks logging to log
func NewDBWithLogger(t *testing.T, log *zap.Logger) *tenant.TenantDB {
	t.Helper()

	db, err := persistence.Open(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err, "Failed to open sqlite database")
	t.Cleanup(func() { _ = persistence.Close(db) })
	require.NoError(t, persistence.AutoMigrate(db), "Failed to migrate test database")

	tdb, err := tenant.New(db, log)
	require.NoError(t, err, "Failed to install tenant scoping")
	return tdb
}

// CreateTenant inserts an active tenant on plan and returns it
func CreateTenant(t *testing.T, db *tenant.TenantDB, name string, plan billing.PlanID) *identity.Tenant {
	t.Helper()
	tn, err := identity.NewTenant(name, plan)
	require.NoError(t, err)
	require.NoError(t, persistence.NewTenantRepository(db).Create(context.Background(), tn))
	return tn
}

// AssertEventually polls condition until it holds or timeout elapses
func AssertEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}
