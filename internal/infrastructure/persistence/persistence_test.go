package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *tenant.TenantDB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, AutoMigrate(db))

	tdb, err := tenant.New(db, zap.NewNop())
	require.NoError(t, err)
	return tdb
}

func TestUsageEventRepository_AppendDedupes(t *testing.T) {
	repo := NewUsageEventRepository(newTestDB(t))
	ctx := context.Background()

	e, err := billing.NewUsageEvent(1, billing.MeterRunCount, 1, map[string]any{"run_id": 5})
	require.NoError(t, err)

	inserted, err := repo.Append(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *e
	dup.ID = 0
	inserted, err = repo.Append(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := repo.ExistsByEventID(ctx, 1, e.EventID)
	require.NoError(t, err)
	assert.True(t, exists)

	totals, err := repo.SumByMeter(ctx, 1, billing.MonthlyPeriod(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals[billing.MeterRunCount])
}

func TestUsageEventRepository_SumByMeterScopedByTenantAndPeriod(t *testing.T) {
	repo := NewUsageEventRepository(newTestDB(t))
	ctx := context.Background()
	period := billing.MonthlyPeriod(time.Now())

	add := func(tenantID uint64, meter billing.Meter, qty int64, at time.Time) {
		e, err := billing.NewUsageEvent(tenantID, meter, qty, nil)
		require.NoError(t, err)
		e.OccurredAt = at.UTC()
		_, err = repo.Append(ctx, e)
		require.NoError(t, err)
	}
	mid := period.Start.Add(48 * time.Hour)
	add(1, billing.MeterRunCount, 1, mid)
	add(1, billing.MeterRunCount, 1, mid)
	add(1, billing.MeterTokenCount, 300, mid)
	add(2, billing.MeterRunCount, 7, mid)
	add(1, billing.MeterRunCount, 50, period.Start.Add(-time.Hour))

	totals, err := repo.SumByMeter(ctx, 1, period)
	require.NoError(t, err)
	assert.Equal(t, map[billing.Meter]int64{billing.MeterRunCount: 2, billing.MeterTokenCount: 300}, totals)

	totals, err = repo.SumByMeter(ctx, 2, period)
	require.NoError(t, err)
	assert.Equal(t, int64(7), totals[billing.MeterRunCount])

	totals, err = repo.SumByMeter(ctx, 3, period)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestMeteringFailureRepository(t *testing.T) {
	repo := NewMeteringFailureRepository(newTestDB(t))
	ctx := context.Background()

	e1, _ := billing.NewUsageEvent(1, billing.MeterRunCount, 1, nil)
	e2, _ := billing.NewUsageEvent(2, billing.MeterTokenCount, 40, nil)
	require.NoError(t, repo.Record(ctx, billing.NewMeteringFailure(e1, errors.New("first"))))
	require.NoError(t, repo.Record(ctx, billing.NewMeteringFailure(e2, errors.New("other"))))
	require.NoError(t, repo.Record(ctx, billing.NewMeteringFailure(e1, errors.New("second"))))

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, e1.EventID, pending[0].EventID)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "second", pending[0].LastError)

	require.NoError(t, repo.MarkResolved(ctx, &pending[0]))
	pending, err = repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(2), pending[0].TenantID)
}

func seedVersion(t *testing.T, tdb *tenant.TenantDB, ctx context.Context) *prompt.Version {
	t.Helper()
	project, err := prompt.NewProject("P", "")
	require.NoError(t, err)
	require.NoError(t, NewProjectRepository(tdb).Create(ctx, project))

	p, err := prompt.NewPrompt(project.ID, "Greeter", "")
	require.NoError(t, err)
	require.NoError(t, NewPromptRepository(tdb).Create(ctx, p))

	v, err := prompt.NewVersion(p.ID, p.NextVersion(), prompt.VersionSpec{Template: "Hi {{name}}", Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.NoError(t, NewVersionRepository(tdb).Create(ctx, v))
	return v
}

func TestRunRepository_OwnerLookupAndFailure(t *testing.T) {
	tdb := newTestDB(t)
	repo := NewRunRepository(tdb)
	ctx := tenantctx.Set(context.Background(), 4)

	run := prompt.NewRun(seedVersion(t, tdb, ctx), map[string]string{"name": "Ada"})
	require.NoError(t, repo.Create(ctx, run))
	assert.Equal(t, uint64(4), run.TenantID)

	// no tenant: scoped lookup sees nothing, owner lookup finds it
	_, err := repo.FindByID(context.Background(), run.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	owned, err := repo.FindOwner(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), owned.TenantID)
	assert.Equal(t, "Ada", owned.Variables["name"])

	_, err = repo.FindOwner(context.Background(), run.ID+100)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, repo.MarkFailedForTenant(context.Background(), 4, run.ID, "owning tenant 4 not found"))
	got, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, prompt.RunStatusFailed, got.Status)
	assert.Equal(t, "owning tenant 4 not found", got.Error)

	// the wrong tenant cannot mark it
	err = repo.MarkFailedForTenant(context.Background(), 5, run.ID, "x")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRunRepository_UpdateAndList(t *testing.T) {
	tdb := newTestDB(t)
	repo := NewRunRepository(tdb)
	ctx := tenantctx.Set(context.Background(), 1)
	v := seedVersion(t, tdb, ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, prompt.NewRun(v, nil)))
	}
	runs, total, err := repo.List(ctx, v.PromptID, shared.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, runs, 2)

	run := runs[0]
	require.NoError(t, run.Start(time.Now()))
	require.NoError(t, repo.Update(ctx, &run))
	got, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, prompt.RunStatusRunning, got.Status)

	other := tenantctx.Set(context.Background(), 2)
	assert.ErrorIs(t, repo.Update(other, &run), shared.ErrNotFound)
}

func TestVersionRepository_UniqueNumber(t *testing.T) {
	tdb := newTestDB(t)
	ctx := tenantctx.Set(context.Background(), 1)
	v := seedVersion(t, tdb, ctx)

	dup, err := prompt.NewVersion(v.PromptID, v.Number, prompt.VersionSpec{Template: "x", Provider: "openai", Model: "gpt-4o"})
	require.NoError(t, err)
	err = NewVersionRepository(tdb).Create(ctx, dup)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	got, err := NewVersionRepository(tdb).FindByNumber(ctx, v.PromptID, 1)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
}

func TestPromptRepository_DeleteRemovesVersions(t *testing.T) {
	tdb := newTestDB(t)
	ctx := tenantctx.Set(context.Background(), 1)
	v := seedVersion(t, tdb, ctx)

	prompts := NewPromptRepository(tdb)
	require.NoError(t, prompts.Delete(ctx, v.PromptID))
	_, err := prompts.FindByID(ctx, v.PromptID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	versions, err := NewVersionRepository(tdb).ListByPrompt(ctx, v.PromptID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	assert.ErrorIs(t, prompts.Delete(ctx, v.PromptID), shared.ErrNotFound)
}

func TestCredentialRepository_Upsert(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))
	ctx := tenantctx.Set(context.Background(), 1)

	require.NoError(t, repo.Upsert(ctx, &provider.Credential{Provider: provider.NameOpenAI, Sealed: []byte("a"), Hint: "…aaaa"}))
	require.NoError(t, repo.Upsert(ctx, &provider.Credential{Provider: provider.NameOpenAI, Sealed: []byte("b"), Hint: "…bbbb"}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []byte("b"), list[0].Sealed)

	other, err := repo.List(tenantctx.Set(context.Background(), 2))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTenantUniqueIndexes(t *testing.T) {
	tdb := newTestDB(t)
	ctx := tenantctx.Set(context.Background(), 1)
	other := tenantctx.Set(context.Background(), 2)

	t.Run("credential per provider", func(t *testing.T) {
		cred := func() *provider.Credential {
			return &provider.Credential{Provider: provider.NameOpenAI, Sealed: []byte("k")}
		}
		require.NoError(t, tdb.WithContext(ctx).Create(cred()).Error)
		assert.ErrorIs(t, tdb.WithContext(ctx).Create(cred()).Error, gorm.ErrDuplicatedKey)
		assert.NoError(t, tdb.WithContext(other).Create(cred()).Error)
	})

	t.Run("subscription per meter", func(t *testing.T) {
		sub := func() *billing.MeterSubscription {
			return &billing.MeterSubscription{Meter: billing.MeterRunCount, ItemID: "si_runs"}
		}
		require.NoError(t, tdb.WithContext(ctx).Create(sub()).Error)
		assert.ErrorIs(t, tdb.WithContext(ctx).Create(sub()).Error, gorm.ErrDuplicatedKey)
		assert.NoError(t, tdb.WithContext(other).Create(sub()).Error)
	})
}

func TestAutoMigrate_Repeatable(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))
	assert.True(t, db.Migrator().HasIndex(&provider.Credential{}, "idx_provider_credentials_tenant_provider"))
}

func TestIdentityRepositories(t *testing.T) {
	tdb := newTestDB(t)
	ctx := context.Background()
	identity.PasswordCost = 4

	tenants := NewTenantRepository(tdb)
	users := NewUserRepository(tdb)
	members := NewMembershipRepository(tdb)

	tn, err := identity.NewTenant("Acme", billing.PlanFree)
	require.NoError(t, err)
	require.NoError(t, tenants.Create(ctx, tn))
	exists, err := tenants.ExistsBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, exists)

	u, err := identity.NewUser("ada@example.com", "Ada", "password123")
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, u))

	dupUser, _ := identity.NewUser("ada@example.com", "Ada", "password123")
	assert.ErrorIs(t, users.Create(ctx, dupUser), shared.ErrAlreadyExists)

	m, err := identity.NewMembership(tn.ID, u.ID, identity.RoleOwner)
	require.NoError(t, err)
	require.NoError(t, members.Create(ctx, m))

	found, err := members.FindForUser(ctx, tn.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleOwner, found.Role)

	_, err = members.FindForUser(ctx, tn.ID+1, u.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, err := members.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, tn.ChangePlan(billing.PlanPro))
	require.NoError(t, tenants.Update(ctx, tn))
	reloaded, err := tenants.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PlanPro, reloaded.Plan)

	_, err = users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMeterSubscriptionRepository_UpsertKeepsReportStateForSameItem(t *testing.T) {
	repo := NewMeterSubscriptionRepository(newTestDB(t))
	ctx := tenantctx.Set(context.Background(), 4)
	period := billing.MonthlyPeriod(time.Now())

	sub, err := billing.NewMeterSubscription(billing.MeterRunCount, "si_runs")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, sub))
	assert.Equal(t, uint64(4), sub.TenantID)

	sub.Acknowledge(period, 8, time.Now().UTC())
	require.NoError(t, repo.MarkReported(context.Background(), sub))

	again, err := billing.NewMeterSubscription(billing.MeterRunCount, "si_runs")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, again))
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, int64(8), again.ReportedQuantity)

	moved, err := billing.NewMeterSubscription(billing.MeterRunCount, "si_runs_v2")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, moved))

	subs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "si_runs_v2", subs[0].ItemID)
	assert.Zero(t, subs[0].ReportedQuantity)
}

func TestMeterSubscriptionRepository_ListAllSpansTenants(t *testing.T) {
	repo := NewMeterSubscriptionRepository(newTestDB(t))
	for _, id := range []uint64{1, 2} {
		sub, err := billing.NewMeterSubscription(billing.MeterTokenCount, "si_tokens")
		require.NoError(t, err)
		require.NoError(t, repo.Upsert(tenantctx.Set(context.Background(), id), sub))
	}

	scoped, err := repo.List(tenantctx.Set(context.Background(), 1))
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	none, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].TenantID)
	assert.Equal(t, uint64(2), all[1].TenantID)
}
