package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	appprompt "github.com/promptlab/backend/internal/application/prompt"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/promptlab/backend/internal/infrastructure/queue"
	"github.com/promptlab/backend/internal/infrastructure/telemetry"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcher_EstablishesOwningTenant(t *testing.T) {
	f := newExecutionFixture(t, ExecutorConfig{})
	ctx, tn := f.tenantCtx(t, "Acme")
	v := f.seedVersion(t, ctx, "ping", nil)
	run := f.insertRun(t, ctx, v, nil)

	rec := &tenantRecorder{next: f.executor}
	d := NewDispatcher(f.runRepo, f.tenants, rec, f.metrics, zap.NewNop())

	// a stale tenant left on the worker context must not leak into the job
	stale := tenantctx.Set(context.Background(), tn.ID+100)
	require.NoError(t, d.Dispatch(stale, run.ID))

	seen, ok := rec.tenantOf(run.ID)
	require.True(t, ok)
	assert.Equal(t, tn.ID, seen)
	assert.Equal(t, prompt.RunStatusCompleted, f.reload(t, ctx, run.ID).Status)
	assert.Equal(t, 1, f.metrics.count(telemetry.DispatchExecuted))
}

func TestDispatcher_MissingRunIsDropped(t *testing.T) {
	f := newExecutionFixture(t, ExecutorConfig{})
	core, logs := observer.New(zapcore.InfoLevel)
	rec := &tenantRecorder{}
	d := NewDispatcher(f.runRepo, f.tenants, rec, f.metrics, zap.New(core))

	require.NoError(t, d.Dispatch(context.Background(), 4242))

	_, ran := rec.tenantOf(4242)
	assert.False(t, ran)
	assert.Equal(t, 1, f.metrics.count(telemetry.DispatchRunNotFound))
	entries := logs.FilterMessage("Dropping job for missing run").All()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(4242), entries[0].ContextMap()["run_id"])
}

func TestDispatcher_MissingTenantFailsRun(t *testing.T) {
	f := newExecutionFixture(t, ExecutorConfig{})
	ghost := tenantctx.Set(context.Background(), 999)
	run := &prompt.Run{PromptID: 1, VersionID: 1, Status: prompt.RunStatusPending, Provider: "openai", Model: "gpt-4o-mini"}
	require.NoError(t, f.runRepo.Create(ghost, run))

	rec := &tenantRecorder{}
	d := NewDispatcher(f.runRepo, f.tenants, rec, f.metrics, zap.NewNop())

	require.NoError(t, d.Dispatch(context.Background(), run.ID))

	_, ran := rec.tenantOf(run.ID)
	assert.False(t, ran)
	got := f.reload(t, ghost, run.ID)
	assert.Equal(t, prompt.RunStatusFailed, got.Status)
	assert.Equal(t, "owning tenant 999 not found", got.Error)
	assert.Equal(t, 1, f.metrics.count(telemetry.DispatchTenantUnresolved))
}

func TestDispatcher_ErrorsAreReturnedForRetry(t *testing.T) {
	t.Run("owner lookup", func(t *testing.T) {
		f := newExecutionFixture(t, ExecutorConfig{})
		d := NewDispatcher(failingOwners{}, f.tenants, &tenantRecorder{}, f.metrics, nil)

		err := d.Dispatch(context.Background(), 1)
		assert.ErrorContains(t, err, "connection refused")
		assert.Equal(t, 1, f.metrics.count(telemetry.DispatchFailed))
	})

	t.Run("executor", func(t *testing.T) {
		f := newExecutionFixture(t, ExecutorConfig{})
		ctx, _ := f.tenantCtx(t, "Acme")
		run := f.insertRun(t, ctx, f.seedVersion(t, ctx, "ping", nil), nil)
		boom := errors.New("database is locked")
		d := NewDispatcher(f.runRepo, f.tenants, &tenantRecorder{err: boom}, f.metrics, nil)

		assert.ErrorIs(t, d.Dispatch(context.Background(), run.ID), boom)
		assert.Equal(t, 1, f.metrics.count(telemetry.DispatchFailed))
	})
}

func TestDispatcher_NilMetrics(t *testing.T) {
	f := newExecutionFixture(t, ExecutorConfig{})
	d := NewDispatcher(f.runRepo, f.tenants, &tenantRecorder{}, nil, nil)
	assert.NotPanics(t, func() { _ = d.Dispatch(context.Background(), 1) })
}

// startPool runs the dispatcher on a single worker so consecutive jobs share a goroutine
func startPool(t *testing.T, f *executionFixture, exec Executor) {
	t.Helper()
	d := NewDispatcher(f.runRepo, f.tenants, exec, f.metrics, zap.NewNop())
	pool := queue.NewWorkerPool(f.queue, d.JobHandler(), queue.PoolConfig{Concurrency: 1, JobTimeout: 10 * time.Second}, zap.NewNop())
	pool.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})
}

func TestWorker_InterleavedTenantsDoNotCrossTalk(t *testing.T) {
	f := newExecutionFixture(t, ExecutorConfig{})
	ctxA, a := f.tenantCtx(t, "Acme")
	ctxB, b := f.tenantCtx(t, "Globex")
	va := f.seedVersion(t, ctxA, "alpha {{n}}", nil)
	vb := f.seedVersion(t, ctxB, "beta gamma {{n}}", nil)

	owner := map[uint64]uint64{}
	for i := range 10 {
		ctx, v, tenantID := ctxA, va, a.ID
		if i%2 == 1 {
			ctx, v, tenantID = ctxB, vb, b.ID
		}
		run, err := f.runs.CreateRun(ctx, appprompt.CreateRunRequest{VersionID: v.ID, Variables: map[string]string{"n": fmt.Sprint(i)}})
		require.NoError(t, err)
		owner[run.ID] = tenantID
	}

	rec := &tenantRecorder{next: f.executor}
	startPool(t, f, rec)

	persistencetest.AssertEventually(t, func() bool {
		return f.metrics.count(telemetry.DispatchExecuted) == len(owner)
	}, 5*time.Second, 10*time.Millisecond, "all runs should execute")

	for runID, tenantID := range owner {
		seen, ok := rec.tenantOf(runID)
		require.True(t, ok)
		assert.Equal(t, tenantID, seen, "run %d executed under the wrong tenant", runID)
	}

	// alpha runs use 2+2 tokens, beta runs 3+3
	assert.Equal(t, int64(5*4), f.usageTotals(t, a.ID)[billing.MeterTokenCount])
	assert.Equal(t, int64(5*6), f.usageTotals(t, b.ID)[billing.MeterTokenCount])
	assert.Equal(t, int64(5), f.usageTotals(t, a.ID)[billing.MeterRunCount])
	assert.Equal(t, int64(5), f.usageTotals(t, b.ID)[billing.MeterRunCount])
}

func TestQuota_ExhaustedTenantDoesNotAffectOthers(t *testing.T) {
	f := newExecutionFixture(t, ExecutorConfig{})
	ctxA, a := f.tenantCtx(t, "Acme")
	ctxB, b := f.tenantCtx(t, "Globex")
	va := f.seedVersion(t, ctxA, "ping {{n}}", nil)
	vb := f.seedVersion(t, ctxB, "ping {{n}}", nil)
	startPool(t, f, f.executor)

	limit, ok := billing.DefaultCatalog()[billing.PlanFree].Limit(billing.MeterRunCount)
	require.True(t, ok)
	for i := range int(limit) {
		_, err := f.runs.CreateRun(ctxA, appprompt.CreateRunRequest{VersionID: va.ID, Variables: map[string]string{"n": fmt.Sprint(i)}})
		require.NoError(t, err, "run %d should be allowed", i)
	}

	_, err := f.runs.CreateRun(ctxA, appprompt.CreateRunRequest{VersionID: va.ID, Variables: map[string]string{"n": "x"}})
	require.ErrorIs(t, err, billing.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "100/100 run_count")

	runB, err := f.runs.CreateRun(ctxB, appprompt.CreateRunRequest{VersionID: vb.ID, Variables: map[string]string{"n": "1"}})
	require.NoError(t, err)

	persistencetest.AssertEventually(t, func() bool {
		return f.metrics.count(telemetry.DispatchExecuted) == int(limit)+1
	}, 10*time.Second, 10*time.Millisecond, "all accepted runs should execute")

	assert.Equal(t, prompt.RunStatusCompleted, f.reload(t, ctxB, runB.ID).Status)
	assert.Equal(t, limit, f.usageTotals(t, a.ID)[billing.MeterRunCount])
	assert.Equal(t, limit*4, f.usageTotals(t, a.ID)[billing.MeterTokenCount])
	assert.Equal(t, int64(1), f.usageTotals(t, b.ID)[billing.MeterRunCount])

	_, total, err := f.runRepo.List(ctxA, 0, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, limit, total, "denied runs are not persisted")
}
