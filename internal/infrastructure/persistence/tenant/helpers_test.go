package tenant

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// note is a tenant-owned test model
type note struct {
	ID       uint64 `gorm:"primaryKey"`
	TenantID uint64 `gorm:"not null;index"`
	Body     string
}

// label is a global test model without a tenant column
type label struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string
}

func setupSQLite(t *testing.T) (*TenantDB, *observer.ObservedLogs) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&note{}, &label{}))

	core, logs := observer.New(zapcore.DebugLevel)
	tdb, err := New(db, zap.New(core))
	require.NoError(t, err)
	return tdb, logs
}

func setupMock(t *testing.T) (*TenantDB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	tdb, err := New(db, zap.NewNop())
	require.NoError(t, err)
	return tdb, mock
}

func countAll(t *testing.T, tdb *TenantDB) int64 {
	t.Helper()
	db, err := tdb.AcrossTenants(t.Context(), "test assertion")
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&note{}).Count(&n).Error)
	return n
}
