package persistence

import (
	"context"
	"time"

	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// ProjectRepository implements prompt.ProjectRepository
type ProjectRepository struct {
	db *tenant.TenantDB
}

// NewProjectRepository creates a ProjectRepository
func NewProjectRepository(db *tenant.TenantDB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *prompt.Project) error {
	return translate(r.db.WithContext(ctx).Create(p).Error, "project")
}

func (r *ProjectRepository) FindByID(ctx context.Context, id uint64) (*prompt.Project, error) {
	var p prompt.Project
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "project")
	}
	return &p, nil
}

func (r *ProjectRepository) List(ctx context.Context, f shared.Filter) ([]prompt.Project, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&prompt.Project{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ps []prompt.Project
	err := paginate(r.db.WithContext(ctx).Order("id"), f).Find(&ps).Error
	return ps, total, err
}

// PromptRepository implements prompt.PromptRepository
type PromptRepository struct {
	db *tenant.TenantDB
}

// NewPromptRepository creates a PromptRepository
func NewPromptRepository(db *tenant.TenantDB) *PromptRepository {
	return &PromptRepository{db: db}
}

func (r *PromptRepository) Create(ctx context.Context, p *prompt.Prompt) error {
	return translate(r.db.WithContext(ctx).Create(p).Error, "prompt")
}

func (r *PromptRepository) FindByID(ctx context.Context, id uint64) (*prompt.Prompt, error) {
	var p prompt.Prompt
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "prompt")
	}
	return &p, nil
}

// List returns prompts, restricted to projectID when it is non-zero
func (r *PromptRepository) List(ctx context.Context, projectID uint64, f shared.Filter) ([]prompt.Prompt, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&prompt.Prompt{})
		if projectID != 0 {
			q = q.Where("project_id = ?", projectID)
		}
		return q
	}
	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ps []prompt.Prompt
	err := paginate(scoped().Order("id desc"), f).Find(&ps).Error
	return ps, total, err
}

func (r *PromptRepository) Update(ctx context.Context, p *prompt.Prompt) error {
	res := r.db.WithContext(ctx).Model(p).Select("name", "description", "latest_version", "updated_at").Updates(p)
	return affected(res, "prompt")
}

// Delete removes the prompt with its versions and test cases. Runs are kept as history.
func (r *PromptRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		if err := affected(r.db.WithContext(ctx).Delete(&prompt.Prompt{}, id), "prompt"); err != nil {
			return err
		}
		if err := r.db.WithContext(ctx).Where("prompt_id = ?", id).Delete(&prompt.Version{}).Error; err != nil {
			return err
		}
		return r.db.WithContext(ctx).Where("prompt_id = ?", id).Delete(&prompt.TestCase{}).Error
	})
}

// VersionRepository implements prompt.VersionRepository
type VersionRepository struct {
	db *tenant.TenantDB
}

// NewVersionRepository creates a VersionRepository
func NewVersionRepository(db *tenant.TenantDB) *VersionRepository {
	return &VersionRepository{db: db}
}

func (r *VersionRepository) Create(ctx context.Context, v *prompt.Version) error {
	return translate(r.db.WithContext(ctx).Create(v).Error, "prompt version")
}

func (r *VersionRepository) FindByID(ctx context.Context, id uint64) (*prompt.Version, error) {
	var v prompt.Version
	if err := r.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, translate(err, "prompt version")
	}
	return &v, nil
}

func (r *VersionRepository) FindByNumber(ctx context.Context, promptID uint64, number int) (*prompt.Version, error) {
	var v prompt.Version
	err := r.db.WithContext(ctx).Where("prompt_id = ? AND number = ?", promptID, number).First(&v).Error
	if err != nil {
		return nil, translate(err, "prompt version")
	}
	return &v, nil
}

func (r *VersionRepository) ListByPrompt(ctx context.Context, promptID uint64) ([]prompt.Version, error) {
	var vs []prompt.Version
	err := r.db.WithContext(ctx).Where("prompt_id = ?", promptID).Order("number desc").Find(&vs).Error
	return vs, err
}

var runMutableColumns = []string{
	"status", "output", "error", "input_tokens", "output_tokens", "cost",
	"passed", "started_at", "completed_at", "updated_at",
}

// RunRepository implements prompt.RunRepository
type RunRepository struct {
	db *tenant.TenantDB
}

// NewRunRepository creates a RunRepository
func NewRunRepository(db *tenant.TenantDB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *prompt.Run) error {
	return translate(r.db.WithContext(ctx).Create(run).Error, "run")
}

func (r *RunRepository) FindByID(ctx context.Context, id uint64) (*prompt.Run, error) {
	var run prompt.Run
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, translate(err, "run")
	}
	return &run, nil
}

// List returns runs, restricted to promptID when it is non-zero
func (r *RunRepository) List(ctx context.Context, promptID uint64, f shared.Filter) ([]prompt.Run, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&prompt.Run{})
		if promptID != 0 {
			q = q.Where("prompt_id = ?", promptID)
		}
		return q
	}
	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var runs []prompt.Run
	err := paginate(scoped().Order("id desc"), f).Find(&runs).Error
	return runs, total, err
}

func (r *RunRepository) Update(ctx context.Context, run *prompt.Run) error {
	res := r.db.WithContext(ctx).Model(run).Select(runMutableColumns).Updates(run)
	return affected(res, "run")
}

func (r *RunRepository) FindOwner(ctx context.Context, id uint64) (*prompt.Run, error) {
	db, err := r.db.AcrossTenants(ctx, "resolve owning tenant of queued run")
	if err != nil {
		return nil, err
	}
	var run prompt.Run
	if err := db.First(&run, id).Error; err != nil {
		return nil, translate(err, "run")
	}
	return &run, nil
}

func (r *RunRepository) MarkFailedForTenant(ctx context.Context, tenantID, id uint64, reason string) error {
	now := time.Now()
	res := r.db.ForTenant(ctx, tenantID).Model(&prompt.Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":       prompt.RunStatusFailed,
		"error":        reason,
		"completed_at": now,
	})
	return affected(res, "run")
}

// TestCaseRepository implements prompt.TestCaseRepository
type TestCaseRepository struct {
	db *tenant.TenantDB
}

// NewTestCaseRepository creates a TestCaseRepository
func NewTestCaseRepository(db *tenant.TenantDB) *TestCaseRepository {
	return &TestCaseRepository{db: db}
}

func (r *TestCaseRepository) Create(ctx context.Context, tc *prompt.TestCase) error {
	return translate(r.db.WithContext(ctx).Create(tc).Error, "test case")
}

func (r *TestCaseRepository) FindByID(ctx context.Context, id uint64) (*prompt.TestCase, error) {
	var tc prompt.TestCase
	if err := r.db.WithContext(ctx).First(&tc, id).Error; err != nil {
		return nil, translate(err, "test case")
	}
	return &tc, nil
}

func (r *TestCaseRepository) ListByPrompt(ctx context.Context, promptID uint64) ([]prompt.TestCase, error) {
	var tcs []prompt.TestCase
	err := r.db.WithContext(ctx).Where("prompt_id = ?", promptID).Order("id").Find(&tcs).Error
	return tcs, err
}

// FeedbackRepository implements prompt.FeedbackRepository
type FeedbackRepository struct {
	db *tenant.TenantDB
}

// NewFeedbackRepository creates a FeedbackRepository
func NewFeedbackRepository(db *tenant.TenantDB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, f *prompt.Feedback) error {
	return translate(r.db.WithContext(ctx).Create(f).Error, "feedback")
}

func (r *FeedbackRepository) ListByRun(ctx context.Context, runID uint64) ([]prompt.Feedback, error) {
	var fs []prompt.Feedback
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&fs).Error
	return fs, err
}
