package prompt

import (
	"strings"

	"github.com/promptlab/backend/internal/domain/shared"
)

// TestCase is a fixed set of variables with an expectation on the output of a prompt
type TestCase struct {
	shared.BaseEntity
	shared.TenantOwned
	PromptID       uint64            `gorm:"not null;index" json:"prompt_id"`
	Name           string            `gorm:"type:varchar(200);not null" json:"name"`
	Variables      map[string]string `gorm:"serializer:json;type:text" json:"variables"`
	ExpectContains string            `gorm:"type:text" json:"expect_contains,omitempty"`
}

// TableName returns the table name for GORM
func (TestCase) TableName() string {
	return "test_cases"
}

// NewTestCase validates and builds a test case
func NewTestCase(promptID uint64, name string, variables map[string]string, expectContains string) (*TestCase, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "test case name is required")
	}
	return &TestCase{PromptID: promptID, Name: name, Variables: variables, ExpectContains: expectContains}, nil
}

// Evaluate reports whether output satisfies the expectation. An empty expectation passes.
func (tc *TestCase) Evaluate(output string) bool {
	if tc.ExpectContains == "" {
		return true
	}
	return strings.Contains(output, tc.ExpectContains)
}
