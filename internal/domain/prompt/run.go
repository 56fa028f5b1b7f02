package prompt

import (
	"fmt"
	"time"

	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one execution of a prompt version. Runs are created pending by a request and
// executed by a background worker.
type Run struct {
	shared.BaseEntity
	shared.TenantOwned
	PromptID     uint64            `gorm:"not null;index" json:"prompt_id"`
	VersionID    uint64            `gorm:"not null;index" json:"version_id"`
	TestCaseID   *uint64           `gorm:"index" json:"test_case_id,omitempty"`
	Status       RunStatus         `gorm:"type:varchar(20);not null;index" json:"status"`
	Provider     string            `gorm:"type:varchar(32);not null" json:"provider"`
	Model        string            `gorm:"type:varchar(100);not null" json:"model"`
	Variables    map[string]string `gorm:"serializer:json;type:text" json:"variables,omitempty"`
	Output       string            `gorm:"type:text" json:"output,omitempty"`
	Error        string            `gorm:"type:text" json:"error,omitempty"`
	InputTokens  int64             `json:"input_tokens"`
	OutputTokens int64             `json:"output_tokens"`
	Cost         decimal.Decimal   `gorm:"type:decimal(20,8);not null;default:0" json:"cost"`
	Passed       *bool             `json:"passed,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// TableName returns the table name for GORM
func (Run) TableName() string {
	return "runs"
}

// NewRun creates a pending run of version with variables
func NewRun(v *Version, variables map[string]string) *Run {
	return &Run{
		PromptID:  v.PromptID,
		VersionID: v.ID,
		Status:    RunStatusPending,
		Provider:  v.Provider,
		Model:     v.Model,
		Variables: variables,
		Cost:      decimal.Zero,
	}
}

// Start moves the run to running. A run left running by a crashed worker may be started
// again; terminal runs may not.
func (r *Run) Start(now time.Time) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("run %d is already %s", r.ID, r.Status))
	}
	r.Status = RunStatusRunning
	r.StartedAt = &now
	return nil
}

// Complete stores the provider output and token usage
func (r *Run) Complete(now time.Time, output string, inputTokens, outputTokens int64, cost decimal.Decimal) error {
	if r.Status != RunStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("run %d is %s, not running", r.ID, r.Status))
	}
	r.Status = RunStatusCompleted
	r.Output = output
	r.InputTokens = inputTokens
	r.OutputTokens = outputTokens
	r.Cost = cost
	r.CompletedAt = &now
	return nil
}

// Fail records a terminal failure with a reason
func (r *Run) Fail(now time.Time, reason string) {
	r.Status = RunStatusFailed
	r.Error = reason
	r.CompletedAt = &now
}

// TotalTokens returns input plus output tokens
func (r *Run) TotalTokens() int64 {
	return r.InputTokens + r.OutputTokens
}
