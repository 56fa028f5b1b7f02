package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type entitlementFixture struct {
	tenants  *MockTenantFinder
	usage    *MockUsageEventRepository
	metrics  *recordingMetrics
	resolver *CapabilityResolver
	svc      *EntitlementService
}

func newEntitlementFixture(c CapabilityCache) *entitlementFixture {
	f := &entitlementFixture{
		tenants: new(MockTenantFinder),
		usage:   new(MockUsageEventRepository),
		metrics: newRecordingMetrics(),
	}
	f.resolver = NewCapabilityResolver(f.tenants, f.usage, billing.DefaultCatalog(), c)
	f.svc = NewEntitlementService(f.resolver, f.metrics, zap.NewNop())
	return f
}

func TestCheckQuota_DeniesAtLimit(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{billing.MeterRunCount: 100}, nil)

	d, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "quota exceeded: 100/100 run_count this period", d.Reason)
	assert.Equal(t, 1, f.metrics.decisions["quota:denied"])
}

func TestCheckQuota_AllowsBelowLimit(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{billing.MeterRunCount: 99}, nil)

	d, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 0, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Requested)
	assert.Equal(t, billing.QuotaStatusWarning, d.Status)

	d, err = f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 2, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestCheckQuota_UsesCurrentMonthlyPeriod(t *testing.T) {
	f := newEntitlementFixture(nil)
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	f.resolver.now = func() time.Time { return fixed }
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), billing.MonthlyPeriod(fixed)).Return(map[billing.Meter]int64{}, nil).Once()

	_, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	require.NoError(t, err)
	f.usage.AssertExpectations(t)
}

func TestCheckQuota_UnknownTenantDenies(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(9)).Return(nil, shared.NewDomainError(shared.ErrNotFound.Code, "tenant not found"))

	d, err := f.svc.CheckQuota(context.Background(), 9, billing.MeterRunCount, 1, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "tenant 9 not found", d.Reason)

	fd, err := f.svc.CheckFeatureAccess(context.Background(), 9, "provider:openai", nil)
	require.NoError(t, err)
	assert.False(t, fd.Allowed)
}

func TestCheckFeature_SuspendedTenantDenies(t *testing.T) {
	f := newEntitlementFixture(nil)
	tenant := activeTenant(2, billing.PlanPro)
	tenant.Status = identity.TenantStatusSuspended
	f.tenants.On("FindByID", mock.Anything, uint64(2)).Return(tenant, nil)

	d, err := f.svc.CheckFeatureAccess(context.Background(), 2, "provider:anthropic", nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "suspended")
	f.usage.AssertNotCalled(t, "SumByMeter", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckFeature_ByPlan(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{}, nil)

	d, err := f.svc.CheckFeatureAccess(context.Background(), 1, "provider:openai", map[string]any{"route": "runs"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = f.svc.CheckFeatureAccess(context.Background(), 1, "provider:anthropic", nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "provider:anthropic is not included in the free plan", d.Reason)
	assert.Equal(t, 1, f.metrics.decisions["feature:allowed"])
	assert.Equal(t, 1, f.metrics.decisions["feature:denied"])
}

func TestCheckQuota_StoreErrorIsError(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(nil, errors.New("timeout"))

	_, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	assert.Error(t, err)
}

func TestCheckQuota_UnknownPlanIsError(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, "legacy"), nil)

	_, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	assert.ErrorIs(t, err, billing.ErrUnknownPlan)
}

func TestResolver_CacheServesRepeatCallsUntilInvalidated(t *testing.T) {
	c := cache.NewCapabilityCache(time.Minute, nil, zap.NewNop())
	f := newEntitlementFixture(c)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{billing.MeterRunCount: 10}, nil).Once()

	for range 3 {
		_, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
		require.NoError(t, err)
	}
	f.usage.AssertNumberOfCalls(t, "SumByMeter", 1)

	f.resolver.Invalidate(context.Background(), 1)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{billing.MeterRunCount: 100}, nil).Once()

	d, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	f.usage.AssertNumberOfCalls(t, "SumByMeter", 2)
}

func TestResolver_WithoutCacheAlwaysReads(t *testing.T) {
	f := newEntitlementFixture(nil)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{}, nil)

	for range 3 {
		_, err := f.resolver.Resolve(context.Background(), 1)
		require.NoError(t, err)
	}
	f.usage.AssertNumberOfCalls(t, "SumByMeter", 3)
}

func TestResolver_CachedEntryFromPreviousPeriodIsIgnored(t *testing.T) {
	c := cache.NewCapabilityCache(time.Hour, nil, zap.NewNop())
	f := newEntitlementFixture(c)
	lastMonth := time.Now().AddDate(0, -1, 0)
	c.Set(context.Background(), 1, &billing.UsageCapabilities{TenantID: 1, Period: billing.MonthlyPeriod(lastMonth)})

	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).Return(map[billing.Meter]int64{}, nil).Once()

	caps, err := f.resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, caps.Period.Contains(time.Now()))
	f.usage.AssertExpectations(t)
}

func TestResolver_InvalidationDuringReadIsNotCached(t *testing.T) {
	c := cache.NewCapabilityCache(time.Minute, nil, zap.NewNop())
	f := newEntitlementFixture(c)
	f.tenants.On("FindByID", mock.Anything, uint64(1)).Return(activeTenant(1, billing.PlanFree), nil)

	// a run is metered while the first read is in flight
	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).
		Run(func(mock.Arguments) { f.resolver.Invalidate(context.Background(), 1) }).
		Return(map[billing.Meter]int64{billing.MeterRunCount: 99}, nil).Once()
	d, err := f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	f.usage.On("SumByMeter", mock.Anything, uint64(1), mock.Anything).
		Return(map[billing.Meter]int64{billing.MeterRunCount: 100}, nil).Once()
	d, err = f.svc.CheckQuota(context.Background(), 1, billing.MeterRunCount, 1, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "quota exceeded: 100/100 run_count this period", d.Reason)
	f.usage.AssertNumberOfCalls(t, "SumByMeter", 2)
}
