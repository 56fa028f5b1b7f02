package prompt

import (
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
)

// =============================================================================
// Project and prompt DTOs
// =============================================================================

// CreateProjectRequest represents a request to create a project
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=200"`
	Description string `json:"description"`
}

// CreatePromptRequest represents a request to create a prompt, optionally with its first version
type CreatePromptRequest struct {
	ProjectID   uint64                `json:"project_id" binding:"required"`
	Name        string                `json:"name" binding:"required,min=1,max=200"`
	Description string                `json:"description"`
	Version     *CreateVersionRequest `json:"version"`
}

// UpdatePromptRequest changes a prompt's name or description
type UpdatePromptRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
}

// CreateVersionRequest represents a new immutable version of a prompt
type CreateVersionRequest struct {
	Template     string         `json:"template" binding:"required"`
	SystemPrompt string         `json:"system_prompt"`
	Provider     string         `json:"provider" binding:"required,provider"`
	Model        string         `json:"model" binding:"required,max=100"`
	Params       map[string]any `json:"params"`
	Note         string         `json:"note"`
}

func (r CreateVersionRequest) spec() prompt.VersionSpec {
	return prompt.VersionSpec{
		Template:     r.Template,
		SystemPrompt: r.SystemPrompt,
		Provider:     r.Provider,
		Model:        r.Model,
		Params:       r.Params,
		Note:         r.Note,
	}
}

// CreateTestCaseRequest represents a request to add a test case to a prompt
type CreateTestCaseRequest struct {
	Name           string            `json:"name" binding:"required,min=1,max=200"`
	Variables      map[string]string `json:"variables"`
	ExpectContains string            `json:"expect_contains"`
}

// PromptResponse is a prompt with its versions
type PromptResponse struct {
	prompt.Prompt
	Versions []prompt.Version `json:"versions,omitempty"`
}

// =============================================================================
// Run DTOs
// =============================================================================

// CreateRunRequest asks for one execution of a prompt version. When TestCaseID is set the
// test case's variables are used, overridden by Variables.
type CreateRunRequest struct {
	VersionID  uint64            `json:"version_id" binding:"required"`
	Variables  map[string]string `json:"variables"`
	TestCaseID *uint64           `json:"test_case_id"`
}

// CreateFeedbackRequest rates a run's output
type CreateFeedbackRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

// ListRunsFilter narrows run listings
type ListRunsFilter struct {
	shared.Filter
	PromptID uint64
}
