package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/backend/internal/domain/shared"
)

// MeteringFailure records a usage event that could not be appended, so it can be replayed
// by reconciliation instead of being lost.
type MeteringFailure struct {
	shared.BaseEntity
	shared.TenantOwned
	EventID    uuid.UUID      `gorm:"uniqueIndex;not null" json:"event_id"`
	Meter      Meter          `gorm:"size:64;not null" json:"meter"`
	Quantity   int64          `gorm:"not null" json:"quantity"`
	Context    map[string]any `gorm:"serializer:json;type:text" json:"context,omitempty"`
	OccurredAt time.Time      `gorm:"not null" json:"occurred_at"`
	LastError  string         `gorm:"type:text" json:"last_error"`
	Attempts   int            `gorm:"not null;default:1" json:"attempts"`
	ResolvedAt *time.Time     `gorm:"index" json:"resolved_at,omitempty"`
}

// TableName returns the table name for GORM
func (MeteringFailure) TableName() string {
	return "metering_failures"
}

// NewMeteringFailure captures a failed event with the error that stopped it
func NewMeteringFailure(e *UsageEvent, cause error) *MeteringFailure {
	f := &MeteringFailure{
		EventID:    e.EventID,
		Meter:      e.Meter,
		Quantity:   e.Quantity,
		Context:    e.Context,
		OccurredAt: e.OccurredAt,
		Attempts:   1,
	}
	f.TenantID = e.TenantID
	if cause != nil {
		f.LastError = cause.Error()
	}
	return f
}

// UsageEvent rebuilds the original event for replay
func (f *MeteringFailure) UsageEvent() *UsageEvent {
	e := &UsageEvent{
		EventID:    f.EventID,
		Meter:      f.Meter,
		Quantity:   f.Quantity,
		Context:    f.Context,
		OccurredAt: f.OccurredAt,
	}
	e.TenantID = f.TenantID
	return e
}

// IsResolved reports whether the failure has been replayed successfully
func (f *MeteringFailure) IsResolved() bool {
	return f.ResolvedAt != nil
}
