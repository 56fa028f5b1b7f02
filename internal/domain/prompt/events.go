package prompt

import "github.com/promptlab/backend/internal/domain/shared"

// EventTypeRunCreated is published after a run is persisted
const EventTypeRunCreated = "prompt.run.created"

// RunCreated announces a new pending run
type RunCreated struct {
	shared.BaseDomainEvent
	RunID      uint64  `json:"run_id"`
	PromptID   uint64  `json:"prompt_id"`
	VersionID  uint64  `json:"version_id"`
	Provider   string  `json:"provider"`
	TestCaseID *uint64 `json:"test_case_id,omitempty"`
}

// NewRunCreated builds the event for r
func NewRunCreated(r *Run) *RunCreated {
	return &RunCreated{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRunCreated, r.TenantID),
		RunID:           r.ID,
		PromptID:        r.PromptID,
		VersionID:       r.VersionID,
		Provider:        r.Provider,
		TestCaseID:      r.TestCaseID,
	}
}
