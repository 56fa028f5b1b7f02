package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/crypto"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"github.com/promptlab/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*CredentialService, context.Context, context.Context) {
	t.Helper()
	db := persistencetest.NewDB(t)
	a := persistencetest.CreateTenant(t, db, "Acme", billing.PlanFree)
	b := persistencetest.CreateTenant(t, db, "Globex", billing.PlanFree)

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	svc := NewCredentialService(persistence.NewCredentialRepository(db), crypto.NewSealer(key), zap.NewNop())
	return svc, tenantctx.Set(context.Background(), a.ID), tenantctx.Set(context.Background(), b.ID)
}

func TestCredentialService_SaveRevealList(t *testing.T) {
	svc, ctx, _ := newService(t)

	resp, err := svc.Save(ctx, SaveCredentialRequest{Provider: "OpenAI", APIKey: "sk-test-1234567890", Label: "prod"})
	require.NoError(t, err)
	assert.Equal(t, provider.NameOpenAI, resp.Provider)
	assert.Equal(t, "…7890", resp.Hint)

	key, err := svc.Reveal(ctx, provider.NameOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", key)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "prod", list[0].Label)
}

func TestCredentialService_SaveReplacesPreviousKey(t *testing.T) {
	svc, ctx, _ := newService(t)

	_, err := svc.Save(ctx, SaveCredentialRequest{Provider: "anthropic", APIKey: "sk-ant-old-key"})
	require.NoError(t, err)
	_, err = svc.Save(ctx, SaveCredentialRequest{Provider: "anthropic", APIKey: "sk-ant-new-key"})
	require.NoError(t, err)

	key, err := svc.Reveal(ctx, provider.NameAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-new-key", key)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCredentialService_TenantIsolation(t *testing.T) {
	svc, ctxA, ctxB := newService(t)

	_, err := svc.Save(ctxA, SaveCredentialRequest{Provider: "openai", APIKey: "sk-acme-secret"})
	require.NoError(t, err)

	_, err = svc.Reveal(ctxB, provider.NameOpenAI)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, err := svc.List(ctxB)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCredentialService_UnknownProvider(t *testing.T) {
	svc, ctx, _ := newService(t)

	_, err := svc.Save(ctx, SaveCredentialRequest{Provider: "acme-ai", APIKey: "sk-whatever"})
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

type brokenSealer struct{}

func (brokenSealer) Seal(p []byte) ([]byte, error) { return p, nil }
func (brokenSealer) Open([]byte) ([]byte, error)   { return nil, crypto.ErrUnseal }

func TestCredentialService_UnsealFailure(t *testing.T) {
	db := persistencetest.NewDB(t)
	tn := persistencetest.CreateTenant(t, db, "Acme", billing.PlanFree)
	ctx := tenantctx.Set(context.Background(), tn.ID)
	svc := NewCredentialService(persistence.NewCredentialRepository(db), brokenSealer{}, zap.NewNop())

	_, err := svc.Save(ctx, SaveCredentialRequest{Provider: "openai", APIKey: "sk-test-key"})
	require.NoError(t, err)

	_, err = svc.Reveal(ctx, provider.NameOpenAI)
	assert.True(t, errors.Is(err, crypto.ErrUnseal))
	assert.ErrorIs(t, err, ErrCredentialUnreadable)
}
