package prompt

import (
	"strings"

	"github.com/promptlab/backend/internal/domain/shared"
)

// Prompt is a named, versioned template inside a project
type Prompt struct {
	shared.BaseEntity
	shared.TenantOwned
	ProjectID     uint64 `gorm:"not null;index" json:"project_id"`
	Name          string `gorm:"type:varchar(200);not null" json:"name"`
	Description   string `gorm:"type:text" json:"description"`
	LatestVersion int    `gorm:"not null;default:0" json:"latest_version"`
}

// TableName returns the table name for GORM
func (Prompt) TableName() string {
	return "prompts"
}

// NewPrompt validates and builds a prompt in projectID
func NewPrompt(projectID uint64, name, description string) (*Prompt, error) {
	if projectID == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "project is required")
	}
	p := &Prompt{ProjectID: projectID, Description: description}
	if err := p.Rename(name); err != nil {
		return nil, err
	}
	return p, nil
}

// Rename changes the display name
func (p *Prompt) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_INPUT", "prompt name is required")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_INPUT", "prompt name cannot exceed 200 characters")
	}
	p.Name = name
	return nil
}

// NextVersion reserves the next version number
func (p *Prompt) NextVersion() int {
	p.LatestVersion++
	return p.LatestVersion
}
