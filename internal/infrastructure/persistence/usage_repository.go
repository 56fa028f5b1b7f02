package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageEventRepository implements billing.UsageEventRepository. Events carry an explicit
// tenant id, so appends work from request and worker contexts alike.
type UsageEventRepository struct {
	db *tenant.TenantDB
}

// NewUsageEventRepository creates a UsageEventRepository
func NewUsageEventRepository(db *tenant.TenantDB) *UsageEventRepository {
	return &UsageEventRepository{db: db}
}

// Append inserts e, ignoring a duplicate event id
func (r *UsageEventRepository) Append(ctx context.Context, e *billing.UsageEvent) (bool, error) {
	res := r.db.ForTenant(ctx, e.TenantID).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type meterTotal struct {
	Meter billing.Meter
	Total int64
}

func (r *UsageEventRepository) SumByMeter(ctx context.Context, tenantID uint64, period billing.Period) (map[billing.Meter]int64, error) {
	var rows []meterTotal
	err := r.db.ForTenant(ctx, tenantID).
		Model(&billing.UsageEvent{}).
		Select("meter, COALESCE(SUM(quantity), 0) AS total").
		Where("occurred_at >= ? AND occurred_at < ?", period.Start, period.End).
		Group("meter").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[billing.Meter]int64, len(rows))
	for _, row := range rows {
		totals[row.Meter] = row.Total
	}
	return totals, nil
}

func (r *UsageEventRepository) ExistsByEventID(ctx context.Context, tenantID uint64, eventID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.ForTenant(ctx, tenantID).Model(&billing.UsageEvent{}).Where("event_id = ?", eventID).Count(&n).Error
	return n > 0, err
}

// MeteringFailureRepository implements billing.MeteringFailureRepository
type MeteringFailureRepository struct {
	db *tenant.TenantDB
}

// NewMeteringFailureRepository creates a MeteringFailureRepository
func NewMeteringFailureRepository(db *tenant.TenantDB) *MeteringFailureRepository {
	return &MeteringFailureRepository{db: db}
}

func (r *MeteringFailureRepository) Record(ctx context.Context, f *billing.MeteringFailure) error {
	err := r.db.ForTenant(ctx, f.TenantID).Create(f).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return r.db.ForTenant(ctx, f.TenantID).
		Model(&billing.MeteringFailure{}).
		Where("event_id = ?", f.EventID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": f.LastError,
		}).Error
}

// ListPending scans all tenants; it backs the reconciliation job, which has no tenant
func (r *MeteringFailureRepository) ListPending(ctx context.Context, limit int) ([]billing.MeteringFailure, error) {
	db, err := r.db.AcrossTenants(ctx, "metering reconciliation")
	if err != nil {
		return nil, err
	}
	var fs []billing.MeteringFailure
	err = db.Where("resolved_at IS NULL").Order("id").Limit(limit).Find(&fs).Error
	return fs, err
}

func (r *MeteringFailureRepository) MarkResolved(ctx context.Context, f *billing.MeteringFailure) error {
	now := time.Now().UTC()
	res := r.db.ForTenant(ctx, f.TenantID).Model(&billing.MeteringFailure{}).Where("id = ?", f.ID).Update("resolved_at", now)
	if err := affected(res, "metering failure"); err != nil {
		return err
	}
	f.ResolvedAt = &now
	return nil
}

// MeterSubscriptionRepository implements billing.MeterSubscriptionRepository
type MeterSubscriptionRepository struct {
	db *tenant.TenantDB
}

// NewMeterSubscriptionRepository creates a MeterSubscriptionRepository
func NewMeterSubscriptionRepository(db *tenant.TenantDB) *MeterSubscriptionRepository {
	return &MeterSubscriptionRepository{db: db}
}

// Upsert replaces the current tenant's link for s.Meter, keeping its report state
// when the item is unchanged
func (r *MeterSubscriptionRepository) Upsert(ctx context.Context, s *billing.MeterSubscription) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		var existing billing.MeterSubscription
		err := r.db.WithContext(ctx).Where("meter = ?", s.Meter).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return translate(r.db.WithContext(ctx).Create(s).Error, "meter subscription")
		case err != nil:
			return err
		}
		s.ID = existing.ID
		s.TenantID = existing.TenantID
		s.CreatedAt = existing.CreatedAt
		if existing.ItemID == s.ItemID {
			s.ReportedPeriod = existing.ReportedPeriod
			s.ReportedQuantity = existing.ReportedQuantity
			s.ReportedAt = existing.ReportedAt
		}
		res := r.db.WithContext(ctx).Model(s).
			Select("item_id", "reported_quantity", "reported_period", "reported_at", "updated_at").
			Updates(s)
		return affected(res, "meter subscription")
	})
}

func (r *MeterSubscriptionRepository) List(ctx context.Context) ([]billing.MeterSubscription, error) {
	var subs []billing.MeterSubscription
	err := r.db.WithContext(ctx).Order("meter").Find(&subs).Error
	return subs, err
}

// ListAll scans all tenants for the export job
func (r *MeterSubscriptionRepository) ListAll(ctx context.Context) ([]billing.MeterSubscription, error) {
	db, err := r.db.AcrossTenants(ctx, "usage export")
	if err != nil {
		return nil, err
	}
	var subs []billing.MeterSubscription
	err = db.Order("tenant_id, meter").Find(&subs).Error
	return subs, err
}

func (r *MeterSubscriptionRepository) MarkReported(ctx context.Context, s *billing.MeterSubscription) error {
	res := r.db.ForTenant(ctx, s.TenantID).
		Model(&billing.MeterSubscription{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"reported_quantity": s.ReportedQuantity,
			"reported_period":   s.ReportedPeriod,
			"reported_at":       s.ReportedAt,
		})
	return affected(res, "meter subscription")
}
