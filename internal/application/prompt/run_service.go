package prompt

import (
	"context"
	"fmt"
	"maps"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/queue"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"go.uber.org/zap"
)

// Entitlements gates run creation on the tenant's plan and usage
type Entitlements interface {
	CheckQuota(ctx context.Context, tenantID uint64, quota billing.Meter, requested int64, details map[string]any) (billing.QuotaDecision, error)
	CheckFeatureAccess(ctx context.Context, tenantID uint64, feature string, details map[string]any) (billing.EntitlementDecision, error)
}

// RunQueue hands runs to the background workers
type RunQueue interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// RunService creates runs and serves their results and feedback. It does not meter:
// usage is recorded by observers of the RunCreated event.
type RunService struct {
	versions     prompt.VersionRepository
	testCases    prompt.TestCaseRepository
	runs         prompt.RunRepository
	feedback     prompt.FeedbackRepository
	entitlements Entitlements
	renderer     Renderer
	events       shared.EventPublisher
	queue        RunQueue
	logger       *zap.Logger
}

// NewRunService creates a new RunService
func NewRunService(
	versions prompt.VersionRepository,
	testCases prompt.TestCaseRepository,
	runs prompt.RunRepository,
	feedback prompt.FeedbackRepository,
	entitlements Entitlements,
	renderer Renderer,
	events shared.EventPublisher,
	q RunQueue,
	log *zap.Logger,
) *RunService {
	return &RunService{
		versions:     versions,
		testCases:    testCases,
		runs:         runs,
		feedback:     feedback,
		entitlements: entitlements,
		renderer:     renderer,
		events:       events,
		queue:        q,
		logger:       log,
	}
}

// CreateRun checks that the variables render the version, checks the run quota and the provider feature, persists a pending run,
// publishes RunCreated and enqueues the run for execution.
func (s *RunService) CreateRun(ctx context.Context, req CreateRunRequest) (*prompt.Run, error) {
	tenantID, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.WithLogger(ctx, s.logger)

	version, err := s.versions.FindByID(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}

	variables := req.Variables
	if req.TestCaseID != nil {
		tc, err := s.testCases.FindByID(ctx, *req.TestCaseID)
		if err != nil {
			return nil, err
		}
		if tc.PromptID != version.PromptID {
			return nil, shared.NewDomainError(shared.ErrInvalidInput.Code,
				fmt.Sprintf("test case %d does not belong to prompt %d", tc.ID, version.PromptID))
		}
		variables = maps.Clone(tc.Variables)
		if variables == nil {
			variables = map[string]string{}
		}
		maps.Copy(variables, req.Variables)
	}
	if _, err := s.renderer.Render(version, variables); err != nil {
		return nil, err
	}

	details := map[string]any{"prompt_id": version.PromptID, "version_id": version.ID}
	if err := s.checkQuota(ctx, tenantID, billing.MeterRunCount, details); err != nil {
		return nil, err
	}
	if req.TestCaseID != nil {
		if err := s.checkQuota(ctx, tenantID, billing.MeterTestRunCount, details); err != nil {
			return nil, err
		}
	}

	feature := provider.Name(version.Provider).FeatureKey()
	fd, err := s.entitlements.CheckFeatureAccess(ctx, tenantID, feature, details)
	if err != nil {
		return nil, err
	}
	if !fd.Allowed {
		return nil, billing.FeatureNotEntitled(fd)
	}

	run := prompt.NewRun(version, variables)
	run.TestCaseID = req.TestCaseID
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	if err := s.events.Publish(ctx, prompt.NewRunCreated(run)); err != nil {
		log.Error("Failed to publish run created", zap.Uint64("run_id", run.ID), zap.Error(err))
	}

	if err := s.queue.Enqueue(ctx, queue.NewJob(run.ID)); err != nil {
		log.Error("Failed to enqueue run", zap.Uint64("run_id", run.ID), zap.Error(err))
		if markErr := s.runs.MarkFailedForTenant(ctx, tenantID, run.ID, "failed to enqueue run"); markErr != nil {
			log.Error("Failed to mark unqueued run failed", zap.Uint64("run_id", run.ID), zap.Error(markErr))
		}
		return nil, fmt.Errorf("failed to enqueue run %d: %w", run.ID, err)
	}

	log.Info("Run created",
		zap.Uint64("run_id", run.ID),
		zap.Uint64("version_id", version.ID),
		zap.String("provider", run.Provider),
	)
	return run, nil
}

func (s *RunService) checkQuota(ctx context.Context, tenantID uint64, meter billing.Meter, details map[string]any) error {
	d, err := s.entitlements.CheckQuota(ctx, tenantID, meter, 1, details)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return billing.QuotaExceeded(d)
	}
	return nil
}

// GetRun returns a run
func (s *RunService) GetRun(ctx context.Context, id uint64) (*prompt.Run, error) {
	return s.runs.FindByID(ctx, id)
}

// ListRuns lists runs, newest first
func (s *RunService) ListRuns(ctx context.Context, filter ListRunsFilter) (shared.Paginated[prompt.Run], error) {
	f := filter.Filter.Normalize()
	items, total, err := s.runs.List(ctx, filter.PromptID, f)
	if err != nil {
		return shared.Paginated[prompt.Run]{}, err
	}
	return shared.NewPaginated(items, total, f), nil
}

// AddFeedback rates a run on behalf of userID
func (s *RunService) AddFeedback(ctx context.Context, runID, userID uint64, req CreateFeedbackRequest) (*prompt.Feedback, error) {
	if _, err := s.runs.FindByID(ctx, runID); err != nil {
		return nil, err
	}
	fb, err := prompt.NewFeedback(runID, userID, req.Rating, req.Comment)
	if err != nil {
		return nil, err
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// ListFeedback lists a run's feedback
func (s *RunService) ListFeedback(ctx context.Context, runID uint64) ([]prompt.Feedback, error) {
	if _, err := s.runs.FindByID(ctx, runID); err != nil {
		return nil, err
	}
	return s.feedback.ListByRun(ctx, runID)
}
