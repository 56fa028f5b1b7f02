package prompt

import (
	"strings"

	"github.com/promptlab/backend/internal/domain/shared"
)

// DefaultProjectName is the project created for every new tenant
const DefaultProjectName = "Default"

// Project groups prompts inside a tenant
type Project struct {
	shared.BaseEntity
	shared.TenantOwned
	Name        string `gorm:"type:varchar(200);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// TableName returns the table name for GORM
func (Project) TableName() string {
	return "projects"
}

// NewProject validates and builds a project. The owning tenant is stamped on save.
func NewProject(name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "project name is required")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_INPUT", "project name cannot exceed 200 characters")
	}
	return &Project{Name: name, Description: description}, nil
}
