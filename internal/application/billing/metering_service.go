package billing

import (
	"context"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Metrics receives metering and entitlement counters
type Metrics interface {
	MeterRecorded(meter string, duplicate bool)
	MeteringFailed(meter string)
	MeteringReplayed(ok bool)
	EntitlementDecided(kind string, allowed bool)
}

type noopMetrics struct{}

func (noopMetrics) MeterRecorded(string, bool)      {}
func (noopMetrics) MeteringFailed(string)           {}
func (noopMetrics) MeteringReplayed(bool)           {}
func (noopMetrics) EntitlementDecided(string, bool) {}

// CapabilityInvalidator drops cached capabilities after usage changes
type CapabilityInvalidator interface {
	Invalidate(ctx context.Context, tenantID uint64)
}

// MeteringService appends usage events to the usage log. It never returns an error to
// its caller: a failed append is logged, counted and stored for reconciliation.
type MeteringService struct {
	usage       billing.UsageEventRepository
	failures    billing.MeteringFailureRepository
	invalidator CapabilityInvalidator
	metrics     Metrics
	logger      *zap.Logger
}

// NewMeteringService creates a MeteringService. invalidator and metrics may be nil.
func NewMeteringService(
	usage billing.UsageEventRepository,
	failures billing.MeteringFailureRepository,
	invalidator CapabilityInvalidator,
	metrics Metrics,
	log *zap.Logger,
) *MeteringService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MeteringService{
		usage:       usage,
		failures:    failures,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      log.Named("metering"),
	}
}

// Meter records quantity units of meter for tenantID under a fresh event id
func (s *MeteringService) Meter(ctx context.Context, tenantID uint64, meter billing.Meter, quantity int64, meta map[string]any) {
	e, err := billing.NewUsageEvent(tenantID, meter, quantity, meta)
	if err != nil {
		s.rejected(ctx, tenantID, meter, quantity, err)
		return
	}
	s.MeterEvent(ctx, e)
}

// MeterEvent records a caller-built event. Re-delivering an event id is a no-op.
func (s *MeteringService) MeterEvent(ctx context.Context, e *billing.UsageEvent) {
	if err := e.Validate(); err != nil {
		s.rejected(ctx, e.TenantID, e.Meter, e.Quantity, err)
		return
	}
	if err := s.append(ctx, e); err != nil {
		s.fail(ctx, e, err)
	}
}

func (s *MeteringService) append(ctx context.Context, e *billing.UsageEvent) error {
	inserted, err := s.usage.Append(ctx, e)
	if err != nil {
		return err
	}
	s.metrics.MeterRecorded(string(e.Meter), !inserted)
	log := logger.WithLogger(ctx, s.logger).With(
		zap.Uint64("usage_tenant_id", e.TenantID),
		zap.String("meter", string(e.Meter)),
		zap.String("event_id", e.EventID.String()),
	)
	if !inserted {
		log.Debug("Duplicate usage event ignored")
		return nil
	}
	log.Debug("Usage event recorded", zap.Int64("quantity", e.Quantity))
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, e.TenantID)
	}
	return nil
}

// fail keeps the event for reconciliation. If even that write fails, the full event is
// logged so it can be recovered from logs.
func (s *MeteringService) fail(ctx context.Context, e *billing.UsageEvent, cause error) {
	s.metrics.MeteringFailed(string(e.Meter))
	log := logger.WithLogger(ctx, s.logger)
	log.Error("Failed to record usage event",
		zap.Uint64("usage_tenant_id", e.TenantID),
		zap.String("meter", string(e.Meter)),
		zap.String("event_id", e.EventID.String()),
		zap.Error(cause),
	)
	if err := s.failures.Record(ctx, billing.NewMeteringFailure(e, cause)); err != nil {
		log.Error("Failed to persist metering failure",
			zap.Uint64("usage_tenant_id", e.TenantID),
			zap.String("meter", string(e.Meter)),
			zap.Int64("quantity", e.Quantity),
			zap.String("event_id", e.EventID.String()),
			zap.Time("occurred_at", e.OccurredAt),
			zap.Any("context", e.Context),
			zap.Error(err),
		)
	}
}

// rejected handles events that can never be appended; replaying them would fail forever
func (s *MeteringService) rejected(ctx context.Context, tenantID uint64, meter billing.Meter, quantity int64, cause error) {
	s.metrics.MeteringFailed(string(meter))
	logger.WithLogger(ctx, s.logger).Error("Rejected invalid usage event",
		zap.Uint64("usage_tenant_id", tenantID),
		zap.String("meter", string(meter)),
		zap.Int64("quantity", quantity),
		zap.Error(cause),
	)
}

// Reconcile replays up to limit pending failures and returns how many were resolved.
// A replay that fails again bumps the failure's attempt count.
func (s *MeteringService) Reconcile(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	pending, err := s.failures.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	log := logger.WithLogger(ctx, s.logger)
	resolved := 0
	for i := range pending {
		f := &pending[i]
		if err := s.append(ctx, f.UsageEvent()); err != nil {
			s.metrics.MeteringReplayed(false)
			f.LastError = err.Error()
			if recErr := s.failures.Record(ctx, f); recErr != nil {
				log.Warn("Failed to update metering failure", zap.Uint64("failure_id", f.ID), zap.Error(recErr))
			}
			continue
		}
		if err := s.failures.MarkResolved(ctx, f); err != nil {
			// the event is in the log; the next pass dedupes it and retries the mark
			log.Warn("Failed to resolve metering failure", zap.Uint64("failure_id", f.ID), zap.Error(err))
			continue
		}
		s.metrics.MeteringReplayed(true)
		resolved++
	}

	if len(pending) > 0 {
		log.Info("Metering reconciliation finished",
			zap.Int("pending", len(pending)),
			zap.Int("resolved", resolved),
		)
	}
	return resolved, nil
}
