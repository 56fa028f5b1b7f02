package prompt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"github.com/promptlab/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"github.com/promptlab/backend/internal/infrastructure/queue"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"go.uber.org/zap"
)

type stubEntitlements struct {
	mu        sync.Mutex
	denyQuota map[billing.Meter]bool
	denyAll   bool
	err       error
	quotas    []billing.Meter
	features  []string
}

func (s *stubEntitlements) CheckQuota(_ context.Context, _ uint64, quota billing.Meter, requested int64, _ map[string]any) (billing.QuotaDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas = append(s.quotas, quota)
	if s.err != nil {
		return billing.QuotaDecision{}, s.err
	}
	if s.denyQuota[quota] {
		return billing.DenyQuota(quota, requested, "quota exceeded: 100/100 "+string(quota)+" this period"), nil
	}
	return billing.QuotaDecision{Allowed: true, Quota: quota, Requested: requested}, nil
}

func (s *stubEntitlements) CheckFeatureAccess(_ context.Context, _ uint64, feature string, _ map[string]any) (billing.EntitlementDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, feature)
	if s.denyAll {
		return billing.Deny(feature, feature+" is not included in the free plan"), nil
	}
	return billing.EntitlementDecision{Allowed: true, Feature: feature}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	fail bool
}

func (q *recordingQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("redis unavailable")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type promptFixture struct {
	db           *tenant.TenantDB
	prompts      *PromptService
	runs         *RunService
	entitlements *stubEntitlements
	events       *recordingPublisher
	queue        *recordingQueue
}

func newPromptFixture(t *testing.T) *promptFixture {
	t.Helper()
	db := persistencetest.NewDB(t)
	f := &promptFixture{
		db:           db,
		entitlements: &stubEntitlements{denyQuota: map[billing.Meter]bool{}},
		events:       &recordingPublisher{},
		queue:        &recordingQueue{},
	}
	versions := persistence.NewVersionRepository(db)
	testCases := persistence.NewTestCaseRepository(db)
	f.prompts = NewPromptService(
		db,
		persistence.NewProjectRepository(db),
		persistence.NewPromptRepository(db),
		versions,
		testCases,
		zap.NewNop(),
	)
	f.runs = NewRunService(
		versions,
		testCases,
		persistence.NewRunRepository(db),
		persistence.NewFeedbackRepository(db),
		f.entitlements,
		NewPlaceholderRenderer(),
		f.events,
		f.queue,
		zap.NewNop(),
	)
	return f
}

// tenantCtx creates a tenant and returns a context carrying it
func (f *promptFixture) tenantCtx(t *testing.T, name string) context.Context {
	t.Helper()
	tn := persistencetest.CreateTenant(t, f.db, name, billing.PlanFree)
	return tenantctx.Set(context.Background(), tn.ID)
}

func openAIVersion(template string) *CreateVersionRequest {
	return &CreateVersionRequest{Template: template, Provider: "openai", Model: "gpt-4o-mini"}
}
