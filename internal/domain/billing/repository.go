package billing

import (
	"context"

	"github.com/google/uuid"
)

// UsageEventRepository is the append-only usage log
type UsageEventRepository interface {
	// Append stores e. It reports false, with no error, when an event with the same
	// EventID already exists.
	Append(ctx context.Context, e *UsageEvent) (bool, error)
	// SumByMeter aggregates the tenant's usage in period, keyed by meter
	SumByMeter(ctx context.Context, tenantID uint64, period Period) (map[Meter]int64, error)
	// ExistsByEventID reports whether the event id is already in the log
	ExistsByEventID(ctx context.Context, tenantID uint64, eventID uuid.UUID) (bool, error)
}

// MeteringFailureRepository stores usage events that failed to append
type MeteringFailureRepository interface {
	// Record stores the failure, bumping the attempt count if it is already known
	Record(ctx context.Context, f *MeteringFailure) error
	// ListPending returns unresolved failures across all tenants, oldest first
	ListPending(ctx context.Context, limit int) ([]MeteringFailure, error)
	// MarkResolved stamps the failure as replayed
	MarkResolved(ctx context.Context, f *MeteringFailure) error
}
