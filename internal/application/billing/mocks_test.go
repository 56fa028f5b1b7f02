package billing

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/stretchr/testify/mock"
)

type MockUsageEventRepository struct {
	mock.Mock
}

func (m *MockUsageEventRepository) Append(ctx context.Context, e *billing.UsageEvent) (bool, error) {
	args := m.Called(ctx, e)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageEventRepository) SumByMeter(ctx context.Context, tenantID uint64, period billing.Period) (map[billing.Meter]int64, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[billing.Meter]int64), args.Error(1)
}

func (m *MockUsageEventRepository) ExistsByEventID(ctx context.Context, tenantID uint64, eventID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, eventID)
	return args.Bool(0), args.Error(1)
}

type MockMeteringFailureRepository struct {
	mock.Mock
}

func (m *MockMeteringFailureRepository) Record(ctx context.Context, f *billing.MeteringFailure) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockMeteringFailureRepository) ListPending(ctx context.Context, limit int) ([]billing.MeteringFailure, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.MeteringFailure), args.Error(1)
}

func (m *MockMeteringFailureRepository) MarkResolved(ctx context.Context, f *billing.MeteringFailure) error {
	return m.Called(ctx, f).Error(0)
}

type MockTenantFinder struct {
	mock.Mock
}

func (m *MockTenantFinder) FindByID(ctx context.Context, id uint64) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

type recordingInvalidator struct {
	mu      sync.Mutex
	tenants []uint64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenantID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenantID)
}

type recordingMetrics struct {
	mu         sync.Mutex
	recorded   int
	duplicates int
	failures   int
	replays    map[bool]int
	decisions  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{replays: map[bool]int{}, decisions: map[string]int{}}
}

func (r *recordingMetrics) MeterRecorded(_ string, duplicate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if duplicate {
		r.duplicates++
		return
	}
	r.recorded++
}

func (r *recordingMetrics) MeteringFailed(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingMetrics) MeteringReplayed(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays[ok]++
}

func (r *recordingMetrics) EntitlementDecided(kind string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := kind + ":denied"
	if allowed {
		key = kind + ":allowed"
	}
	r.decisions[key]++
}

func activeTenant(id uint64, plan billing.PlanID) *identity.Tenant {
	t := &identity.Tenant{Name: "Acme", Slug: "acme", Status: identity.TenantStatusActive, Plan: plan}
	t.ID = id
	return t
}
