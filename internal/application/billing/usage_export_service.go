package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ExportMetrics counts usage reports sent to the billing provider
type ExportMetrics interface {
	UsageExported(meter string, ok bool)
}

type noopExportMetrics struct{}

func (noopExportMetrics) UsageExported(string, bool) {}

// UsageExportService keeps the billing provider's metered totals in line with the usage
// log. Each pass sends the current period total of every linked meter that changed.
type UsageExportService struct {
	subscriptions billing.MeterSubscriptionRepository
	usage         billing.UsageEventRepository
	reporter      billing.UsageReporter
	metrics       ExportMetrics
	now           func() time.Time
	logger        *zap.Logger
}

// ErrNoUsageReporter is returned by Export when no billing provider is configured
var ErrNoUsageReporter = errors.New("no usage reporter configured")

// NewUsageExportService creates a UsageExportService. metrics may be nil.
func NewUsageExportService(
	subscriptions billing.MeterSubscriptionRepository,
	usage billing.UsageEventRepository,
	reporter billing.UsageReporter,
	metrics ExportMetrics,
	log *zap.Logger,
) *UsageExportService {
	if metrics == nil {
		metrics = noopExportMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageExportService{
		subscriptions: subscriptions,
		usage:         usage,
		reporter:      reporter,
		metrics:       metrics,
		now:           time.Now,
		logger:        log.Named("usage_export"),
	}
}

// Link points the current tenant's meter at a provider item
func (s *UsageExportService) Link(ctx context.Context, meter billing.Meter, itemID string) (*billing.MeterSubscription, error) {
	sub, err := billing.NewMeterSubscription(meter, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	logger.WithLogger(ctx, s.logger).Info("Meter linked for export",
		zap.String("meter", string(meter)),
		zap.String("item_id", sub.ItemID),
	)
	return sub, nil
}

// Links lists the current tenant's meter links
func (s *UsageExportService) Links(ctx context.Context) ([]billing.MeterSubscription, error) {
	return s.subscriptions.List(ctx)
}

// Export reports every changed total and returns how many reports were accepted.
// A failing link does not stop the others; all failures are returned joined.
func (s *UsageExportService) Export(ctx context.Context) (int, error) {
	if s.reporter == nil {
		return 0, ErrNoUsageReporter
	}
	subs, err := s.subscriptions.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	current := billing.MonthlyPeriod(now)
	totals := newTotalsCache(s.usage)

	var errs []error
	sent := 0
	for i := range subs {
		sub := &subs[i]

		// close out the period the link last reported into before moving on
		if prev, ok := sub.OpenPeriodBefore(current); ok {
			n, err := s.exportPeriod(ctx, sub, totals, prev, prev.End.Add(-time.Second))
			sent += n
			if err != nil {
				errs = append(errs, err)
				continue
			}
		}
		n, err := s.exportPeriod(ctx, sub, totals, current, now)
		sent += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if sent > 0 || len(errs) > 0 {
		s.logger.Info("Usage export finished",
			zap.Int("links", len(subs)),
			zap.Int("reported", sent),
			zap.Int("failed", len(errs)),
		)
	}
	return sent, errors.Join(errs...)
}

func (s *UsageExportService) exportPeriod(ctx context.Context, sub *billing.MeterSubscription, totals *totalsCache, period billing.Period, at time.Time) (int, error) {
	quantity, err := totals.get(ctx, sub.TenantID, period, sub.Meter)
	if err != nil {
		return 0, fmt.Errorf("tenant %d %s: %w", sub.TenantID, sub.Meter, err)
	}
	if !sub.NeedsReport(period, quantity) {
		return 0, nil
	}

	report := billing.UsageReport{
		TenantID: sub.TenantID,
		Meter:    sub.Meter,
		ItemID:   sub.ItemID,
		Quantity: quantity,
		Period:   period,
		At:       at,
	}
	log := s.logger.With(
		zap.Uint64("usage_tenant_id", sub.TenantID),
		zap.String("meter", string(sub.Meter)),
		zap.String("item_id", sub.ItemID),
	)
	recordID, err := s.reporter.ReportUsage(ctx, report)
	if err != nil {
		s.metrics.UsageExported(string(sub.Meter), false)
		log.Warn("Usage report rejected", zap.Error(err))
		return 0, fmt.Errorf("tenant %d %s: %w", sub.TenantID, sub.Meter, err)
	}
	s.metrics.UsageExported(string(sub.Meter), true)

	sub.Acknowledge(period, quantity, s.now().UTC())
	if err := s.subscriptions.MarkReported(ctx, sub); err != nil {
		// the provider has it; the next pass resends the same total under the same key
		log.Warn("Failed to store usage report acknowledgement", zap.Error(err))
	}
	log.Debug("Usage reported",
		zap.Int64("quantity", quantity),
		zap.String("record_id", recordID),
	)
	return 1, nil
}

type totalsKey struct {
	tenantID uint64
	start    time.Time
}

// totalsCache aggregates each tenant's usage once per period within a pass
type totalsCache struct {
	usage billing.UsageEventRepository
	sums  map[totalsKey]map[billing.Meter]int64
}

func newTotalsCache(usage billing.UsageEventRepository) *totalsCache {
	return &totalsCache{usage: usage, sums: map[totalsKey]map[billing.Meter]int64{}}
}

func (c *totalsCache) get(ctx context.Context, tenantID uint64, period billing.Period, meter billing.Meter) (int64, error) {
	key := totalsKey{tenantID: tenantID, start: period.Start}
	sums, ok := c.sums[key]
	if !ok {
		var err error
		sums, err = c.usage.SumByMeter(ctx, tenantID, period)
		if err != nil {
			return 0, err
		}
		c.sums[key] = sums
	}
	return sums[meter], nil
}
