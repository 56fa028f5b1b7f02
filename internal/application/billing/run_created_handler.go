package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
)

// EventMeter is the part of MeteringService the observers need
type EventMeter interface {
	MeterEvent(ctx context.Context, e *billing.UsageEvent)
}

// RunCreatedHandler meters run_count for every created run, and test_run_count when the
// run evaluates a test case. Usage event ids derive from the domain event id, so a
// redelivered event is deduplicated by the usage log.
type RunCreatedHandler struct {
	meter EventMeter
}

// NewRunCreatedHandler creates the handler
func NewRunCreatedHandler(meter EventMeter) *RunCreatedHandler {
	return &RunCreatedHandler{meter: meter}
}

func (h *RunCreatedHandler) EventTypes() []string {
	return []string{prompt.EventTypeRunCreated}
}

func (h *RunCreatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*prompt.RunCreated)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, prompt.EventTypeRunCreated)
	}

	details := map[string]any{
		"run_id":     e.RunID,
		"prompt_id":  e.PromptID,
		"version_id": e.VersionID,
		"provider":   e.Provider,
	}
	h.emit(ctx, e, e.EventID(), billing.MeterRunCount, details)

	if e.TestCaseID != nil {
		id := uuid.NewSHA1(e.EventID(), []byte(billing.MeterTestRunCount))
		h.emit(ctx, e, id, billing.MeterTestRunCount, map[string]any{
			"run_id":       e.RunID,
			"test_case_id": *e.TestCaseID,
		})
	}
	return nil
}

// emit stamps the usage event with the domain event's time so a late redelivery still
// lands in the period the run was created in
func (h *RunCreatedHandler) emit(ctx context.Context, e *prompt.RunCreated, id uuid.UUID, meter billing.Meter, details map[string]any) {
	ue := &billing.UsageEvent{
		EventID:    id,
		Meter:      meter,
		Quantity:   1,
		Context:    details,
		OccurredAt: e.OccurredAt().UTC(),
	}
	ue.TenantID = e.TenantID()
	h.meter.MeterEvent(ctx, ue)
}
