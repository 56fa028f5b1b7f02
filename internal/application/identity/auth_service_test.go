package identity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/auth"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"github.com/promptlab/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	identity.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type authFixture struct {
	db      *tenant.TenantDB
	jwt     *auth.JWTService
	revoker *auth.InMemoryTokenRevoker
	svc     *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := persistencetest.NewDB(t)
	f := &authFixture{
		db:      db,
		jwt:     auth.NewJWTService(config.JWTConfig{Secret: "test-secret-key-with-enough-bytes", Expiration: time.Hour, Issuer: "promptlab-test"}),
		revoker: auth.NewInMemoryTokenRevoker(),
	}
	f.svc = NewAuthService(
		db,
		persistence.NewTenantRepository(db),
		persistence.NewUserRepository(db),
		persistence.NewMembershipRepository(db),
		persistence.NewProjectRepository(db),
		f.jwt,
		f.revoker,
		zap.NewNop(),
	)
	return f
}

func signupRequest(email, tenantName string) SignupRequest {
	return SignupRequest{Email: email, Password: "correct-horse", Name: "Ana", TenantName: tenantName}
}

func TestSignup_CreatesTenantMembershipAndDefaultProject(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Signup(ctx, signupRequest("Ana@Example.com", "Acme Labs"))
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", resp.User.Email)
	assert.Equal(t, "acme-labs", resp.Tenant.Slug)
	assert.Equal(t, billing.PlanFree, resp.Tenant.Plan)
	assert.Equal(t, identity.RoleOwner, resp.Role)

	claims, err := f.jwt.Validate(resp.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.Tenant.ID, claims.TenantID)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "owner", claims.Role)

	tctx := tenantctx.Set(ctx, resp.Tenant.ID)
	projects, total, err := persistence.NewProjectRepository(f.db).List(tctx, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, prompt.DefaultProjectName, projects[0].Name)
	assert.Equal(t, resp.Tenant.ID, projects[0].TenantID)

	m, err := persistence.NewMembershipRepository(f.db).FindForUser(ctx, resp.Tenant.ID, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleOwner, m.Role)
}

func TestSignup_DuplicateEmailRollsBack(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupRequest("ana@example.com", "Acme"))
	require.NoError(t, err)

	_, err = f.svc.Signup(ctx, signupRequest("ANA@example.com", "Other Co"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	exists, err := persistence.NewTenantRepository(f.db).ExistsBySlug(ctx, "other-co")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSignup_SlugCollisionGetsSuffix(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.Signup(ctx, signupRequest("a@example.com", "Acme"))
	require.NoError(t, err)
	second, err := f.svc.Signup(ctx, signupRequest("b@example.com", "ACME"))
	require.NoError(t, err)
	third, err := f.svc.Signup(ctx, signupRequest("c@example.com", "acme!"))
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Tenant.Slug)
	assert.Equal(t, "acme-2", second.Tenant.Slug)
	assert.Equal(t, "acme-3", third.Tenant.Slug)
}

func TestSignup_InvalidInput(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Signup(context.Background(), SignupRequest{Email: "not-an-email", Password: "correct-horse", TenantName: "Acme"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.svc.Signup(context.Background(), SignupRequest{Email: "a@example.com", Password: "short", TenantName: "Acme"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	signup, err := f.svc.Signup(ctx, signupRequest("ana@example.com", "Acme"))
	require.NoError(t, err)

	t.Run("first tenant when none requested", func(t *testing.T) {
		resp, err := f.svc.Login(ctx, LoginRequest{Email: " ANA@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.Equal(t, signup.Tenant.ID, resp.Tenant.ID)
	})

	t.Run("explicit tenant", func(t *testing.T) {
		resp, err := f.svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "correct-horse", TenantID: signup.Tenant.ID})
		require.NoError(t, err)
		assert.Equal(t, identity.RoleOwner, resp.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := f.svc.Login(ctx, LoginRequest{Email: "bob@example.com", Password: "correct-horse"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("tenant without membership", func(t *testing.T) {
		other := persistencetest.CreateTenant(t, f.db, "Other", billing.PlanFree)
		_, err := f.svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "correct-horse", TenantID: other.ID})
		assert.ErrorIs(t, err, ErrNoMembership)
	})
}

func TestLogin_SuspendedTenant(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	signup, err := f.svc.Signup(ctx, signupRequest("ana@example.com", "Acme"))
	require.NoError(t, err)

	tenants := NewTenantService(persistence.NewTenantRepository(f.db), nil, nil, zap.NewNop())
	_, err = tenants.Suspend(ctx, signup.Tenant.ID)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "correct-horse"})
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "TENANT_INACTIVE", de.Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	signup, err := f.svc.Signup(ctx, signupRequest("ana@example.com", "Acme"))
	require.NoError(t, err)

	claims, err := f.jwt.Validate(signup.Token.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, claims))

	revoked, err := f.revoker.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.ErrorIs(t, f.svc.Logout(ctx, nil), auth.ErrInvalidToken)
}
