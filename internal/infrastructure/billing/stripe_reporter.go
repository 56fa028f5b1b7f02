// Package billing sends metered usage to Stripe.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/usagerecord"
	"go.uber.org/zap"
)

// ErrRateLimited is returned when Stripe throttles usage record creation
var ErrRateLimited = errors.New("stripe: rate limited")

// StripeUsageReporter implements billing.UsageReporter with Stripe usage records.
// Every report uses action=set, so a report carries the period total, not a delta.
type StripeUsageReporter struct {
	records usagerecord.Client
	logger  *zap.Logger
}

// Option customizes a StripeUsageReporter
type Option func(*StripeUsageReporter)

// WithBackend replaces the Stripe API backend
func WithBackend(b stripe.Backend) Option {
	return func(r *StripeUsageReporter) {
		r.records.B = b
	}
}

// NewStripeUsageReporter creates a reporter from cfg
func NewStripeUsageReporter(cfg config.StripeConfig, log *zap.Logger, opts ...Option) *StripeUsageReporter {
	if log == nil {
		log = zap.NewNop()
	}
	r := &StripeUsageReporter{
		records: usagerecord.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		logger:  log.Named("stripe"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReportUsage creates a usage record for the report's subscription item
func (r *StripeUsageReporter) ReportUsage(ctx context.Context, u billing.UsageReport) (string, error) {
	if u.ItemID == "" {
		return "", fmt.Errorf("stripe: subscription item id is required")
	}
	if u.Quantity < 0 {
		return "", fmt.Errorf("stripe: quantity cannot be negative")
	}

	params := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(u.ItemID),
		Quantity:         stripe.Int64(u.Quantity),
		Action:           stripe.String("set"),
	}
	if !u.At.IsZero() {
		params.Timestamp = stripe.Int64(u.At.Unix())
	}
	params.Context = ctx
	params.SetIdempotencyKey(u.IdempotencyKey())

	record, err := r.records.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %s", ErrRateLimited, stripeErr.Msg)
		}
		return "", fmt.Errorf("stripe: failed to report usage: %w", err)
	}

	r.logger.Debug("Reported usage to Stripe",
		zap.Uint64("usage_tenant_id", u.TenantID),
		zap.String("meter", string(u.Meter)),
		zap.String("usage_record_id", record.ID),
		zap.Int64("quantity", record.Quantity),
	)
	return record.ID, nil
}
