package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"go.uber.org/zap"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	handler func(method, path, key string, params stripe.ParamsContainer) ([]byte, error)
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	data, err := m.handler(method, path, key, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

func newReporter(handler func(method, path, key string, params stripe.ParamsContainer) ([]byte, error)) *StripeUsageReporter {
	cfg := config.StripeConfig{Enabled: true, SecretKey: "sk_test_123456789", TestMode: true}
	return NewStripeUsageReporter(cfg, zap.NewNop(), WithBackend(&mockBackend{handler: handler}))
}

func sampleReport() billing.UsageReport {
	at := time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)
	return billing.UsageReport{
		TenantID: 7,
		Meter:    billing.MeterRunCount,
		ItemID:   "si_test123",
		Quantity: 42,
		Period:   billing.MonthlyPeriod(at),
		At:       at,
	}
}

func TestReportUsage_SetsPeriodTotal(t *testing.T) {
	report := sampleReport()
	var got *stripe.UsageRecordParams
	r := newReporter(func(method, path, key string, params stripe.ParamsContainer) ([]byte, error) {
		if method != "POST" || path != "/v1/subscription_items/si_test123/usage_records" {
			return nil, fmt.Errorf("unexpected call: %s %s", method, path)
		}
		assert.Equal(t, "sk_test_123456789", key)
		got = params.(*stripe.UsageRecordParams)
		return json.Marshal(&stripe.UsageRecord{ID: "mbur_1", SubscriptionItem: "si_test123", Quantity: 42, Timestamp: report.At.Unix()})
	})

	id, err := r.ReportUsage(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "mbur_1", id)

	require.NotNil(t, got)
	assert.Equal(t, "set", *got.Action)
	assert.Equal(t, int64(42), *got.Quantity)
	assert.Equal(t, report.At.Unix(), *got.Timestamp)
	assert.Equal(t, report.IdempotencyKey(), *got.IdempotencyKey)
}

func TestReportUsage_Validation(t *testing.T) {
	r := newReporter(func(string, string, string, stripe.ParamsContainer) ([]byte, error) {
		t.Fatal("backend must not be called")
		return nil, nil
	})

	report := sampleReport()
	report.ItemID = ""
	_, err := r.ReportUsage(context.Background(), report)
	assert.ErrorContains(t, err, "subscription item id is required")

	report = sampleReport()
	report.Quantity = -1
	_, err = r.ReportUsage(context.Background(), report)
	assert.ErrorContains(t, err, "negative")
}

func TestReportUsage_RateLimited(t *testing.T) {
	r := newReporter(func(string, string, string, stripe.ParamsContainer) ([]byte, error) {
		return nil, &stripe.Error{HTTPStatusCode: 429, Msg: "Too many requests"}
	})

	_, err := r.ReportUsage(context.Background(), sampleReport())
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestReportUsage_APIError(t *testing.T) {
	r := newReporter(func(string, string, string, stripe.ParamsContainer) ([]byte, error) {
		return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "No such subscription item"}
	})

	_, err := r.ReportUsage(context.Background(), sampleReport())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "failed to report usage")
}
