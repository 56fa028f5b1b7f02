package identity

import (
	"errors"
	"testing"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	PasswordCost = bcrypt.MinCost
}

func TestNewTenant(t *testing.T) {
	tn, err := NewTenant("  Acme Labs, Inc. ", "")
	require.NoError(t, err)
	assert.Equal(t, "Acme Labs, Inc.", tn.Name)
	assert.Equal(t, "acme-labs-inc", tn.Slug)
	assert.Equal(t, billing.PlanFree, tn.Plan)
	assert.True(t, tn.IsActive())

	_, err = NewTenant(" ", billing.PlanPro)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestTenant_StatusTransitions(t *testing.T) {
	tn, err := NewTenant("Acme", billing.PlanPro)
	require.NoError(t, err)

	require.NoError(t, tn.Suspend())
	assert.False(t, tn.IsActive())
	assert.True(t, errors.Is(tn.Suspend(), shared.ErrInvalidState))
	require.NoError(t, tn.Activate())
	assert.True(t, tn.IsActive())
}

func TestNewUser(t *testing.T) {
	u, err := NewUser(" Ada@Example.COM ", "Ada", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.True(t, u.VerifyPassword("correct horse"))
	assert.False(t, u.VerifyPassword("wrong"))

	_, err = NewUser("not-an-email", "x", "correct horse")
	assert.Error(t, err)
	_, err = NewUser("a@b.co", "x", "short")
	assert.Error(t, err)
}

func TestRole(t *testing.T) {
	assert.True(t, RoleOwner.CanManage())
	assert.False(t, RoleMember.CanManage())
	assert.False(t, Role("root").IsValid())

	_, err := NewMembership(1, 2, "root")
	assert.Error(t, err)

	m, err := NewMembership(1, 2, RoleMember)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.TenantID)
}
