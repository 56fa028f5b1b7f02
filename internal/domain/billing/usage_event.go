package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/backend/internal/domain/shared"
)

// UsageEvent is one immutable entry in a tenant's usage log.
// EventID is unique across the log; appending an event whose id is already stored is a no-op.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	shared.TenantOwned
	EventID    uuid.UUID      `gorm:"uniqueIndex;not null" json:"event_id"`
	Meter      Meter          `gorm:"size:64;not null;index" json:"meter"`
	Quantity   int64          `gorm:"not null" json:"quantity"`
	Context    map[string]any `gorm:"serializer:json;type:text" json:"context,omitempty"`
	OccurredAt time.Time      `gorm:"not null;index" json:"occurred_at"`
}

// TableName returns the table name for GORM
func (UsageEvent) TableName() string {
	return "usage_events"
}

// NewUsageEvent validates and builds an event with a fresh id
func NewUsageEvent(tenantID uint64, meter Meter, quantity int64, context map[string]any) (*UsageEvent, error) {
	return NewUsageEventWithID(uuid.New(), tenantID, meter, quantity, context)
}

// NewUsageEventWithID builds an event with a caller-supplied id, used when the event is
// derived from a domain event and must be deduplicated on redelivery.
func NewUsageEventWithID(eventID uuid.UUID, tenantID uint64, meter Meter, quantity int64, context map[string]any) (*UsageEvent, error) {
	e := &UsageEvent{
		EventID:    eventID,
		Meter:      meter,
		Quantity:   quantity,
		Context:    context,
		OccurredAt: time.Now().UTC(),
	}
	e.TenantID = tenantID
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the event invariants
func (e *UsageEvent) Validate() error {
	if e.EventID == uuid.Nil {
		return ErrInvalidUsageEvent("event id is required")
	}
	if !e.Meter.IsValid() {
		return ErrInvalidUsageEvent(fmt.Sprintf("unknown meter %q", e.Meter))
	}
	if e.Quantity <= 0 {
		return ErrInvalidUsageEvent("quantity must be positive")
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidUsageEvent("occurred_at is required")
	}
	return nil
}
