package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	appprompt "github.com/promptlab/backend/internal/application/prompt"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"go.uber.org/zap"
)

// usageNamespace derives deterministic usage event ids from run ids
var usageNamespace = uuid.MustParse("6f1c3b7e-4a52-4d0e-9a8e-2f6b1c9d7e31")

// TokenEventID is the usage event id of the token_count event for runID. Re-executing a
// run that was interrupted after metering produces the same id, which the usage log drops.
func TokenEventID(tenantID, runID uint64) uuid.UUID {
	return uuid.NewSHA1(usageNamespace, []byte(fmt.Sprintf("%d/%d/%s", tenantID, runID, billing.MeterTokenCount)))
}

// KeyRevealer returns a tenant's plaintext API key for a provider
type KeyRevealer interface {
	Reveal(ctx context.Context, name provider.Name) (string, error)
}

// UsageMeter records usage events without failing the caller
type UsageMeter interface {
	MeterEvent(ctx context.Context, e *billing.UsageEvent)
}

// ExecutorConfig configures a RunExecutor
type ExecutorConfig struct {
	// RequireCredentials fails runs whose tenant has no key for the provider. When false
	// the client is called without a key, which suits the echo client.
	RequireCredentials bool
}

// RunExecutor executes one run of the tenant in context
type RunExecutor struct {
	runs      prompt.RunRepository
	versions  prompt.VersionRepository
	testCases prompt.TestCaseRepository
	renderer  appprompt.Renderer
	client    provider.Client
	keys      KeyRevealer
	meter     UsageMeter
	cfg       ExecutorConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewRunExecutor creates a new RunExecutor
func NewRunExecutor(
	runs prompt.RunRepository,
	versions prompt.VersionRepository,
	testCases prompt.TestCaseRepository,
	renderer appprompt.Renderer,
	client provider.Client,
	keys KeyRevealer,
	meter UsageMeter,
	cfg ExecutorConfig,
	log *zap.Logger,
) *RunExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunExecutor{
		runs:      runs,
		versions:  versions,
		testCases: testCases,
		renderer:  renderer,
		client:    client,
		keys:      keys,
		meter:     meter,
		cfg:       cfg,
		now:       time.Now,
		logger:    log.Named("executor"),
	}
}

// Execute runs runID to completion. Completed and failed runs are skipped, so a redelivered
// job is harmless. Provider and rendering errors fail the run and return nil; storage errors
// and cancellation leave the run running and are returned so the job is retried.
func (e *RunExecutor) Execute(ctx context.Context, runID uint64) error {
	tenantID, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		return err
	}
	log := logger.WithLogger(ctx, e.logger).With(zap.Uint64("run_id", runID))

	run, err := e.runs.FindByID(ctx, runID)
	if errors.Is(err, shared.ErrNotFound) {
		log.Info("Run disappeared before execution")
		return nil
	}
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		log.Debug("Run already finished", zap.String("status", string(run.Status)))
		return nil
	}

	if err := run.Start(e.now()); err != nil {
		return err
	}
	if err := e.runs.Update(ctx, run); err != nil {
		return err
	}

	completion, err := e.complete(ctx, run)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("run %d interrupted: %w", run.ID, ctx.Err())
		}
		var se *storageError
		if errors.As(err, &se) {
			log.Warn("Run deferred after storage error", zap.Error(se.err))
			return se.err
		}
		log.Warn("Run failed", zap.Error(err))
		return e.fail(ctx, run, err.Error())
	}

	caps, err := provider.Lookup(run.Provider)
	if err != nil {
		return e.fail(ctx, run, err.Error())
	}
	cost := caps.Price(run.Model).Cost(completion.InputTokens, completion.OutputTokens)
	if err := run.Complete(e.now(), completion.Text, completion.InputTokens, completion.OutputTokens, cost); err != nil {
		return err
	}
	if run.TestCaseID != nil {
		tc, err := e.testCases.FindByID(ctx, *run.TestCaseID)
		switch {
		case err == nil:
			passed := tc.Evaluate(run.Output)
			run.Passed = &passed
		case errors.Is(err, shared.ErrNotFound):
			log.Warn("Test case of run was deleted", zap.Uint64("test_case_id", *run.TestCaseID))
		default:
			return err
		}
	}

	// metered before the run is stored as completed: a retry after a failed update meters
	// the same event id again instead of never metering
	if tokens := run.TotalTokens(); tokens > 0 {
		e.meter.MeterEvent(ctx, &billing.UsageEvent{
			TenantOwned: shared.TenantOwned{TenantID: tenantID},
			EventID:     TokenEventID(tenantID, run.ID),
			Meter:       billing.MeterTokenCount,
			Quantity:    tokens,
			Context: map[string]any{
				"run_id":        run.ID,
				"provider":      run.Provider,
				"model":         run.Model,
				"input_tokens":  run.InputTokens,
				"output_tokens": run.OutputTokens,
			},
			OccurredAt: e.now().UTC(),
		})
	}

	if err := e.runs.Update(ctx, run); err != nil {
		return err
	}
	log.Info("Run completed",
		zap.Int64("input_tokens", run.InputTokens),
		zap.Int64("output_tokens", run.OutputTokens),
		zap.String("cost", run.Cost.String()),
	)
	return nil
}

// storageError marks a failure to read the run's inputs. The run stays running and the
// job is retried instead of failing the run.
type storageError struct{ err error }

func (e *storageError) Error() string { return e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

// asStorageError wraps err unless it is a domain error
func asStorageError(err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return &storageError{err: err}
}

func (e *RunExecutor) complete(ctx context.Context, run *prompt.Run) (provider.Completion, error) {
	version, err := e.versions.FindByID(ctx, run.VersionID)
	if err != nil {
		return provider.Completion{}, asStorageError(fmt.Errorf("prompt version %d: %w", run.VersionID, err))
	}
	messages, err := e.renderer.Render(version, run.Variables)
	if err != nil {
		return provider.Completion{}, err
	}

	name := provider.Name(run.Provider)
	apiKey, err := e.keys.Reveal(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound) && !e.cfg.RequireCredentials:
		apiKey = ""
	case errors.Is(err, shared.ErrNotFound):
		return provider.Completion{}, fmt.Errorf("no %s credential configured", name)
	default:
		return provider.Completion{}, asStorageError(err)
	}

	return e.client.Complete(ctx, provider.CompletionRequest{
		Provider:  name,
		Model:     run.Model,
		APIKey:    apiKey,
		Messages:  messages,
		MaxTokens: maxTokens(version.Params),
		Params:    version.Params,
	})
}

func (e *RunExecutor) fail(ctx context.Context, run *prompt.Run, reason string) error {
	run.Fail(e.now(), reason)
	return e.runs.Update(ctx, run)
}

func maxTokens(params map[string]any) int {
	switch v := params["max_tokens"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
