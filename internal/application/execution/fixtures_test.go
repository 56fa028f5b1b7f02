package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appbilling "github.com/promptlab/backend/internal/application/billing"
	"github.com/promptlab/backend/internal/application/credential"
	appprompt "github.com/promptlab/backend/internal/application/prompt"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/infrastructure/crypto"
	"github.com/promptlab/backend/internal/infrastructure/event"
	"github.com/promptlab/backend/internal/infrastructure/llm"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"github.com/promptlab/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"github.com/promptlab/backend/internal/infrastructure/queue"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// executionFixture wires the real services over one SQLite database
type executionFixture struct {
	db          *tenant.TenantDB
	runRepo     *persistence.RunRepository
	usage       *persistence.UsageEventRepository
	tenants     *persistence.TenantRepository
	prompts     *appprompt.PromptService
	runs        *appprompt.RunService
	credentials *credential.CredentialService
	metering    *appbilling.MeteringService
	queue       *queue.MemoryQueue
	client      *capturingClient
	executor    *RunExecutor
	dispatcher  *Dispatcher
	metrics     *recordingDispatchMetrics
}

func newExecutionFixture(t *testing.T, cfg ExecutorConfig) *executionFixture {
	t.Helper()
	db := persistencetest.NewDB(t)
	log := zap.NewNop()

	f := &executionFixture{
		db:      db,
		runRepo: persistence.NewRunRepository(db),
		usage:   persistence.NewUsageEventRepository(db),
		tenants: persistence.NewTenantRepository(db),
		queue:   queue.NewMemoryQueue(512),
		client:  &capturingClient{next: llm.NewEchoClient()},
		metrics: &recordingDispatchMetrics{outcomes: map[string]int{}},
	}
	t.Cleanup(func() { _ = f.queue.Close() })

	versions := persistence.NewVersionRepository(db)
	testCases := persistence.NewTestCaseRepository(db)

	resolver := appbilling.NewCapabilityResolver(f.tenants, f.usage, billing.DefaultCatalog(), nil)
	entitlements := appbilling.NewEntitlementService(resolver, nil, log)
	f.metering = appbilling.NewMeteringService(f.usage, persistence.NewMeteringFailureRepository(db), resolver, nil, log)

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(appbilling.NewRunCreatedHandler(f.metering))
	t.Cleanup(bus.Stop)

	renderer := appprompt.NewPlaceholderRenderer()
	f.prompts = appprompt.NewPromptService(db, persistence.NewProjectRepository(db),
		persistence.NewPromptRepository(db), versions, testCases, log)
	f.runs = appprompt.NewRunService(versions, testCases, f.runRepo, persistence.NewFeedbackRepository(db),
		entitlements, renderer, bus, f.queue, log)

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	f.credentials = credential.NewCredentialService(persistence.NewCredentialRepository(db), crypto.NewSealer(key), log)

	f.executor = NewRunExecutor(f.runRepo, versions, testCases, renderer, f.client, f.credentials, f.metering, cfg, log)
	f.dispatcher = NewDispatcher(f.runRepo, f.tenants, f.executor, f.metrics, log)
	return f
}

// tenantCtx creates a free-plan tenant and returns a context carrying it
func (f *executionFixture) tenantCtx(t *testing.T, name string) (context.Context, *identity.Tenant) {
	t.Helper()
	tn := persistencetest.CreateTenant(t, f.db, name, billing.PlanFree)
	return tenantctx.Set(context.Background(), tn.ID), tn
}

// seedVersion creates a project and prompt with one OpenAI version of template
func (f *executionFixture) seedVersion(t *testing.T, ctx context.Context, template string, params map[string]any) *prompt.Version {
	t.Helper()
	project, err := f.prompts.CreateProject(ctx, appprompt.CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	resp, err := f.prompts.CreatePrompt(ctx, appprompt.CreatePromptRequest{
		ProjectID: project.ID,
		Name:      "Greeter",
		Version: &appprompt.CreateVersionRequest{
			Template: template,
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Params:   params,
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Versions, 1)
	return &resp.Versions[0]
}

// insertRun stores a pending run without going through entitlement checks
func (f *executionFixture) insertRun(t *testing.T, ctx context.Context, v *prompt.Version, vars map[string]string) *prompt.Run {
	t.Helper()
	run := prompt.NewRun(v, vars)
	require.NoError(t, f.runRepo.Create(ctx, run))
	return run
}

func (f *executionFixture) reload(t *testing.T, ctx context.Context, id uint64) *prompt.Run {
	t.Helper()
	run, err := f.runRepo.FindByID(ctx, id)
	require.NoError(t, err)
	return run
}

func (f *executionFixture) usageTotals(t *testing.T, tenantID uint64) map[billing.Meter]int64 {
	t.Helper()
	totals, err := f.usage.SumByMeter(context.Background(), tenantID, billing.MonthlyPeriod(time.Now()))
	require.NoError(t, err)
	return totals
}

// capturingClient records requests and can be made to fail
type capturingClient struct {
	mu       sync.Mutex
	next     provider.Client
	requests []provider.CompletionRequest
	err      error
}

func (c *capturingClient) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return provider.Completion{}, err
	}
	return c.next.Complete(ctx, req)
}

func (c *capturingClient) calls() []provider.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.CompletionRequest(nil), c.requests...)
}

type recordingDispatchMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *recordingDispatchMetrics) Dispatched(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingDispatchMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

// tenantRecorder remembers the tenant each execution ran under
type tenantRecorder struct {
	mu   sync.Mutex
	next Executor
	seen map[uint64]uint64
	err  error
}

func (r *tenantRecorder) Execute(ctx context.Context, runID uint64) error {
	id, ok := tenantctx.Current(ctx)
	r.mu.Lock()
	if r.seen == nil {
		r.seen = map[uint64]uint64{}
	}
	if ok {
		r.seen[runID] = id
	}
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if r.next == nil {
		return nil
	}
	return r.next.Execute(ctx, runID)
}

func (r *tenantRecorder) tenantOf(runID uint64) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.seen[runID]
	return id, ok
}

// failingOwners fails the owner lookup
type failingOwners struct{}

func (failingOwners) FindOwner(context.Context, uint64) (*prompt.Run, error) {
	return nil, errors.New("connection refused")
}

func (failingOwners) MarkFailedForTenant(context.Context, uint64, uint64, string) error {
	return nil
}
