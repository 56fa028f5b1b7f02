package prompt

import (
	"strings"

	"github.com/promptlab/backend/internal/domain/shared"
)

// Version is an immutable snapshot of a prompt's template and model settings.
// Version numbers start at 1 and increase per prompt.
type Version struct {
	shared.BaseEntity
	shared.TenantOwned
	PromptID     uint64         `gorm:"not null;uniqueIndex:idx_prompt_version" json:"prompt_id"`
	Number       int            `gorm:"not null;uniqueIndex:idx_prompt_version" json:"number"`
	Template     string         `gorm:"type:text;not null" json:"template"`
	SystemPrompt string         `gorm:"type:text" json:"system_prompt,omitempty"`
	Provider     string         `gorm:"type:varchar(32);not null" json:"provider"`
	Model        string         `gorm:"type:varchar(100);not null" json:"model"`
	Params       map[string]any `gorm:"serializer:json;type:text" json:"params,omitempty"`
	Note         string         `gorm:"type:text" json:"note,omitempty"`
}

// TableName returns the table name for GORM
func (Version) TableName() string {
	return "prompt_versions"
}

// VersionSpec is the editable content of a version
type VersionSpec struct {
	Template     string
	SystemPrompt string
	Provider     string
	Model        string
	Params       map[string]any
	Note         string
}

// NewVersion builds version number of promptID from spec. Provider and model are validated
// by the caller against the provider catalog.
func NewVersion(promptID uint64, number int, spec VersionSpec) (*Version, error) {
	if strings.TrimSpace(spec.Template) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "template is required")
	}
	if spec.Provider == "" || spec.Model == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "provider and model are required")
	}
	if number < 1 {
		return nil, shared.NewDomainError("INVALID_INPUT", "version number must be positive")
	}
	return &Version{
		PromptID:     promptID,
		Number:       number,
		Template:     spec.Template,
		SystemPrompt: spec.SystemPrompt,
		Provider:     spec.Provider,
		Model:        spec.Model,
		Params:       spec.Params,
		Note:         spec.Note,
	}, nil
}
