// Package execution runs queued prompt runs in the background. A job carries only a run
// id; the dispatcher discovers the owning tenant and establishes it before any scoped work.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/queue"
	"github.com/promptlab/backend/internal/infrastructure/telemetry"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"go.uber.org/zap"
)

var (
	// ErrRunNotFound means the queued run no longer exists. Dispatch logs it and drops the job.
	ErrRunNotFound = errors.New("queued run not found")
	// ErrOwningTenantUnresolved means the run's tenant no longer exists. The run is marked
	// failed and the job is dropped.
	ErrOwningTenantUnresolved = errors.New("owning tenant of run could not be resolved")
)

// Executor performs a run inside its tenant's context
type Executor interface {
	Execute(ctx context.Context, runID uint64) error
}

// OwnerLookup finds runs before their tenant is known
type OwnerLookup interface {
	FindOwner(ctx context.Context, id uint64) (*prompt.Run, error)
	MarkFailedForTenant(ctx context.Context, tenantID, id uint64, reason string) error
}

// TenantFinder loads tenants by id
type TenantFinder interface {
	FindByID(ctx context.Context, id uint64) (*identity.Tenant, error)
}

// DispatchMetrics counts dispatch outcomes
type DispatchMetrics interface {
	Dispatched(outcome string)
}

// Dispatcher turns a run id into an execution scoped to the run's tenant
type Dispatcher struct {
	runs     OwnerLookup
	tenants  TenantFinder
	executor Executor
	metrics  DispatchMetrics
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(runs OwnerLookup, tenants TenantFinder, executor Executor, metrics DispatchMetrics, log *zap.Logger) *Dispatcher {
	if metrics == nil {
		metrics = (*telemetry.Metrics)(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{runs: runs, tenants: tenants, executor: executor, metrics: metrics, logger: log.Named("dispatcher")}
}

// Dispatch executes runID for its owning tenant. Whatever tenant ctx carries is discarded
// first. A missing run or tenant is terminal and returns nil so the job is not retried;
// other errors are returned for retry.
func (d *Dispatcher) Dispatch(ctx context.Context, runID uint64) error {
	ctx = tenantctx.Clear(ctx)
	log := logger.WithLogger(ctx, d.logger).With(zap.Uint64("run_id", runID))

	run, err := d.runs.FindOwner(ctx, runID)
	if errors.Is(err, shared.ErrNotFound) {
		log.Info("Dropping job for missing run", zap.Error(ErrRunNotFound))
		d.metrics.Dispatched(telemetry.DispatchRunNotFound)
		return nil
	}
	if err != nil {
		d.metrics.Dispatched(telemetry.DispatchFailed)
		return fmt.Errorf("failed to load run %d: %w", runID, err)
	}

	if _, err := d.tenants.FindByID(ctx, run.TenantID); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			d.metrics.Dispatched(telemetry.DispatchFailed)
			return fmt.Errorf("failed to load tenant %d: %w", run.TenantID, err)
		}
		reason := fmt.Sprintf("owning tenant %d not found", run.TenantID)
		log.Warn("Run has no owning tenant", zap.Uint64("owner_tenant_id", run.TenantID), zap.Error(ErrOwningTenantUnresolved))
		if err := d.runs.MarkFailedForTenant(ctx, run.TenantID, run.ID, reason); err != nil {
			log.Error("Failed to mark orphaned run failed", zap.Error(err))
		}
		d.metrics.Dispatched(telemetry.DispatchTenantUnresolved)
		return nil
	}

	// from here on every log line carries tenant_id
	ctx = tenantctx.Set(ctx, run.TenantID)

	if err := d.executor.Execute(ctx, runID); err != nil {
		d.metrics.Dispatched(telemetry.DispatchFailed)
		return err
	}
	d.metrics.Dispatched(telemetry.DispatchExecuted)
	return nil
}

// JobHandler adapts the dispatcher to the worker pool
func (d *Dispatcher) JobHandler() queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, job queue.Job) error {
		return d.Dispatch(ctx, job.RunID)
	})
}
