package prompt

import (
	"context"

	"github.com/promptlab/backend/internal/domain/shared"
)

// ProjectRepository persists projects of the current tenant
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	FindByID(ctx context.Context, id uint64) (*Project, error)
	List(ctx context.Context, filter shared.Filter) ([]Project, int64, error)
}

// PromptRepository persists prompts of the current tenant
type PromptRepository interface {
	Create(ctx context.Context, p *Prompt) error
	FindByID(ctx context.Context, id uint64) (*Prompt, error)
	List(ctx context.Context, projectID uint64, filter shared.Filter) ([]Prompt, int64, error)
	Update(ctx context.Context, p *Prompt) error
	Delete(ctx context.Context, id uint64) error
}

// VersionRepository persists prompt versions of the current tenant
type VersionRepository interface {
	Create(ctx context.Context, v *Version) error
	FindByID(ctx context.Context, id uint64) (*Version, error)
	FindByNumber(ctx context.Context, promptID uint64, number int) (*Version, error)
	ListByPrompt(ctx context.Context, promptID uint64) ([]Version, error)
}

// RunRepository persists runs of the current tenant
type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	FindByID(ctx context.Context, id uint64) (*Run, error)
	List(ctx context.Context, promptID uint64, filter shared.Filter) ([]Run, int64, error)
	Update(ctx context.Context, r *Run) error
	// FindOwner loads a run without a tenant in context. It is the dispatcher's lookup
	// that discovers which tenant a queued run belongs to.
	FindOwner(ctx context.Context, id uint64) (*Run, error)
	// MarkFailedForTenant records a terminal failure on a run of an explicitly named tenant
	MarkFailedForTenant(ctx context.Context, tenantID, id uint64, reason string) error
}

// TestCaseRepository persists test cases of the current tenant
type TestCaseRepository interface {
	Create(ctx context.Context, tc *TestCase) error
	FindByID(ctx context.Context, id uint64) (*TestCase, error)
	ListByPrompt(ctx context.Context, promptID uint64) ([]TestCase, error)
}

// FeedbackRepository persists run feedback of the current tenant
type FeedbackRepository interface {
	Create(ctx context.Context, f *Feedback) error
	ListByRun(ctx context.Context, runID uint64) ([]Feedback, error)
}
