package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promptlab/backend/internal/domain/shared"
)

// MeterSubscription links one of a tenant's meters to a metered price item at the
// external billing provider. The export job reports the meter's period total against it.
type MeterSubscription struct {
	shared.BaseEntity
	shared.TenantOwned
	Meter  Meter  `gorm:"size:64;not null;index" json:"meter"`
	ItemID string `gorm:"type:varchar(100);not null" json:"item_id"`
	// Last total acknowledged by the provider, for ReportedPeriod
	ReportedQuantity int64      `gorm:"not null;default:0" json:"reported_quantity"`
	ReportedPeriod   time.Time  `json:"reported_period,omitempty"`
	ReportedAt       *time.Time `json:"reported_at,omitempty"`
}

// TableName returns the table name for GORM
func (MeterSubscription) TableName() string {
	return "meter_subscriptions"
}

// NewMeterSubscription validates a link between meter and itemID
func NewMeterSubscription(meter Meter, itemID string) (*MeterSubscription, error) {
	itemID = strings.TrimSpace(itemID)
	if !meter.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unknown meter %q", meter))
	}
	if itemID == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "item id is required")
	}
	return &MeterSubscription{Meter: meter, ItemID: itemID}, nil
}

// NeedsReport reports whether quantity for period differs from what was last acknowledged
func (s *MeterSubscription) NeedsReport(period Period, quantity int64) bool {
	if !s.ReportedPeriod.Equal(period.Start) {
		return true
	}
	return s.ReportedQuantity != quantity
}

// OpenPeriodBefore returns the earlier period the subscription last reported into, if
// that period has closed before current.
func (s *MeterSubscription) OpenPeriodBefore(current Period) (Period, bool) {
	if s.ReportedPeriod.IsZero() || !s.ReportedPeriod.Before(current.Start) {
		return Period{}, false
	}
	return MonthlyPeriod(s.ReportedPeriod), true
}

// Acknowledge records a successful report
func (s *MeterSubscription) Acknowledge(period Period, quantity int64, at time.Time) {
	s.ReportedPeriod = period.Start
	s.ReportedQuantity = quantity
	s.ReportedAt = &at
}

// UsageReport is the absolute total of one meter for one period, sent to the provider.
// Reports replace earlier ones for the same item and period, so resending is harmless.
type UsageReport struct {
	TenantID uint64
	Meter    Meter
	ItemID   string
	Quantity int64
	Period   Period
	// At places the report inside Period at the provider
	At time.Time
}

// IdempotencyKey is stable for a given tenant, meter, period and total
func (r UsageReport) IdempotencyKey() string {
	return fmt.Sprintf("usage:%d:%s:%d:%d", r.TenantID, r.Meter, r.Period.Start.Unix(), r.Quantity)
}

// UsageReporter sends usage totals to the external billing provider
type UsageReporter interface {
	// ReportUsage returns the provider's record id
	ReportUsage(ctx context.Context, r UsageReport) (string, error)
}

// MeterSubscriptionRepository stores meter links
type MeterSubscriptionRepository interface {
	// Upsert replaces the current tenant's link for s.Meter
	Upsert(ctx context.Context, s *MeterSubscription) error
	// List returns the current tenant's links
	List(ctx context.Context) ([]MeterSubscription, error)
	// ListAll returns links of every tenant; it backs the export job
	ListAll(ctx context.Context) ([]MeterSubscription, error)
	// MarkReported persists the acknowledged total of s
	MarkReported(ctx context.Context, s *MeterSubscription) error
}
