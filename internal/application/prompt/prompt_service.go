package prompt

import (
	"context"
	"fmt"

	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// PromptService manages projects, prompts, versions and test cases of the current tenant.
// Every repository call is tenant scoped, so ids from another tenant read as not found.
type PromptService struct {
	tx        shared.Transactor
	projects  prompt.ProjectRepository
	prompts   prompt.PromptRepository
	versions  prompt.VersionRepository
	testCases prompt.TestCaseRepository
	logger    *zap.Logger
}

// NewPromptService creates a new PromptService
func NewPromptService(
	tx shared.Transactor,
	projects prompt.ProjectRepository,
	prompts prompt.PromptRepository,
	versions prompt.VersionRepository,
	testCases prompt.TestCaseRepository,
	log *zap.Logger,
) *PromptService {
	return &PromptService{
		tx:        tx,
		projects:  projects,
		prompts:   prompts,
		versions:  versions,
		testCases: testCases,
		logger:    log,
	}
}

// CreateProject creates a project
func (s *PromptService) CreateProject(ctx context.Context, req CreateProjectRequest) (*prompt.Project, error) {
	p, err := prompt.NewProject(req.Name, req.Description)
	if err != nil {
		return nil, err
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects lists projects
func (s *PromptService) ListProjects(ctx context.Context, filter shared.Filter) (shared.Paginated[prompt.Project], error) {
	filter = filter.Normalize()
	items, total, err := s.projects.List(ctx, filter)
	if err != nil {
		return shared.Paginated[prompt.Project]{}, err
	}
	return shared.NewPaginated(items, total, filter), nil
}

// CreatePrompt creates a prompt in a project, with its first version when one is given
func (s *PromptService) CreatePrompt(ctx context.Context, req CreatePromptRequest) (*PromptResponse, error) {
	p, err := prompt.NewPrompt(req.ProjectID, req.Name, req.Description)
	if err != nil {
		return nil, err
	}

	resp := &PromptResponse{}
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.projects.FindByID(ctx, req.ProjectID); err != nil {
			return err
		}
		if err := s.prompts.Create(ctx, p); err != nil {
			return err
		}
		if req.Version != nil {
			v, err := s.addVersion(ctx, p, *req.Version)
			if err != nil {
				return err
			}
			resp.Versions = []prompt.Version{*v}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Prompt created",
		zap.Uint64("prompt_id", p.ID),
		zap.Int("versions", p.LatestVersion),
	)
	resp.Prompt = *p
	return resp, nil
}

// ListPrompts lists prompts, restricted to projectID when it is non-zero
func (s *PromptService) ListPrompts(ctx context.Context, projectID uint64, filter shared.Filter) (shared.Paginated[prompt.Prompt], error) {
	filter = filter.Normalize()
	items, total, err := s.prompts.List(ctx, projectID, filter)
	if err != nil {
		return shared.Paginated[prompt.Prompt]{}, err
	}
	return shared.NewPaginated(items, total, filter), nil
}

// GetPrompt returns a prompt with its versions
func (s *PromptService) GetPrompt(ctx context.Context, id uint64) (*PromptResponse, error) {
	p, err := s.prompts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.versions.ListByPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PromptResponse{Prompt: *p, Versions: versions}, nil
}

// UpdatePrompt changes the name or description
func (s *PromptService) UpdatePrompt(ctx context.Context, id uint64, req UpdatePromptRequest) (*prompt.Prompt, error) {
	p, err := s.prompts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if err := p.Rename(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if err := s.prompts.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePrompt deletes a prompt
func (s *PromptService) DeletePrompt(ctx context.Context, id uint64) error {
	return s.prompts.Delete(ctx, id)
}

// CreateVersion appends the next version to a prompt
func (s *PromptService) CreateVersion(ctx context.Context, promptID uint64, req CreateVersionRequest) (*prompt.Version, error) {
	var v *prompt.Version
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		p, err := s.prompts.FindByID(ctx, promptID)
		if err != nil {
			return err
		}
		v, err = s.addVersion(ctx, p, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.WithLogger(ctx, s.logger).Info("Prompt version created",
		zap.Uint64("prompt_id", promptID),
		zap.Int("number", v.Number),
		zap.String("provider", v.Provider),
	)
	return v, nil
}

// addVersion must run inside a transaction together with the read of p
func (s *PromptService) addVersion(ctx context.Context, p *prompt.Prompt, req CreateVersionRequest) (*prompt.Version, error) {
	caps, err := provider.ValidateModel(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if req.SystemPrompt != "" && !caps.SupportsSystemPrompt() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("provider %s does not accept a system prompt", caps.Name()))
	}
	if n, ok := maxTokens(req.Params); ok && n > caps.MaxOutputTokens() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("max_tokens %d exceeds the %d supported by %s", n, caps.MaxOutputTokens(), caps.Name()))
	}

	spec := req.spec()
	spec.Provider = string(caps.Name())
	v, err := prompt.NewVersion(p.ID, p.NextVersion(), spec)
	if err != nil {
		return nil, err
	}
	if err := s.versions.Create(ctx, v); err != nil {
		return nil, err
	}
	if err := s.prompts.Update(ctx, p); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions lists a prompt's versions, newest first
func (s *PromptService) ListVersions(ctx context.Context, promptID uint64) ([]prompt.Version, error) {
	if _, err := s.prompts.FindByID(ctx, promptID); err != nil {
		return nil, err
	}
	return s.versions.ListByPrompt(ctx, promptID)
}

// GetVersion returns version number of a prompt
func (s *PromptService) GetVersion(ctx context.Context, promptID uint64, number int) (*prompt.Version, error) {
	return s.versions.FindByNumber(ctx, promptID, number)
}

// CreateTestCase adds a test case to a prompt
func (s *PromptService) CreateTestCase(ctx context.Context, promptID uint64, req CreateTestCaseRequest) (*prompt.TestCase, error) {
	if _, err := s.prompts.FindByID(ctx, promptID); err != nil {
		return nil, err
	}
	tc, err := prompt.NewTestCase(promptID, req.Name, req.Variables, req.ExpectContains)
	if err != nil {
		return nil, err
	}
	if err := s.testCases.Create(ctx, tc); err != nil {
		return nil, err
	}
	return tc, nil
}

// ListTestCases lists a prompt's test cases
func (s *PromptService) ListTestCases(ctx context.Context, promptID uint64) ([]prompt.TestCase, error) {
	if _, err := s.prompts.FindByID(ctx, promptID); err != nil {
		return nil, err
	}
	return s.testCases.ListByPrompt(ctx, promptID)
}

// maxTokens reads params["max_tokens"], which arrives as float64 from JSON
func maxTokens(params map[string]any) (int, bool) {
	switch v := params["max_tokens"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
