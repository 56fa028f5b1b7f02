package prompt

import (
	"errors"
	"testing"
	"time"

	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersion(t *testing.T) *Version {
	t.Helper()
	v, err := NewVersion(5, 1, VersionSpec{Template: "Hello {{name}}", Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	v.ID = 11
	v.TenantID = 3
	return v
}

func TestNewPrompt(t *testing.T) {
	p, err := NewPrompt(1, "  Greeter ", "says hi")
	require.NoError(t, err)
	assert.Equal(t, "Greeter", p.Name)
	assert.Equal(t, 1, p.NextVersion())
	assert.Equal(t, 2, p.NextVersion())

	_, err = NewPrompt(0, "x", "")
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	_, err = NewPrompt(1, "", "")
	assert.Error(t, err)
}

func TestNewVersion_Validation(t *testing.T) {
	_, err := NewVersion(1, 1, VersionSpec{Template: " ", Provider: "openai", Model: "m"})
	assert.Error(t, err)
	_, err = NewVersion(1, 1, VersionSpec{Template: "t"})
	assert.Error(t, err)
	_, err = NewVersion(1, 0, VersionSpec{Template: "t", Provider: "openai", Model: "m"})
	assert.Error(t, err)
}

func TestRun_Lifecycle(t *testing.T) {
	r := NewRun(testVersion(t), map[string]string{"name": "Ada"})
	assert.Equal(t, RunStatusPending, r.Status)
	assert.Equal(t, uint64(11), r.VersionID)
	assert.Equal(t, "openai", r.Provider)

	now := time.Now()
	require.NoError(t, r.Start(now))
	assert.Equal(t, RunStatusRunning, r.Status)
	// a crashed worker may leave a run running
	require.NoError(t, r.Start(now))

	require.NoError(t, r.Complete(now, "Hello Ada", 10, 5, decimal.RequireFromString("0.0001")))
	assert.Equal(t, RunStatusCompleted, r.Status)
	assert.Equal(t, int64(15), r.TotalTokens())

	err := r.Start(now)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestRun_CompleteRequiresRunning(t *testing.T) {
	r := NewRun(testVersion(t), nil)
	err := r.Complete(time.Now(), "x", 1, 1, decimal.Zero)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestRun_Fail(t *testing.T) {
	r := NewRun(testVersion(t), nil)
	r.Fail(time.Now(), "owning tenant 9 not found")
	assert.Equal(t, RunStatusFailed, r.Status)
	assert.True(t, r.Status.IsTerminal())
	assert.NotNil(t, r.CompletedAt)
}

func TestTestCase_Evaluate(t *testing.T) {
	tc, err := NewTestCase(1, "greets", map[string]string{"name": "Ada"}, "Ada")
	require.NoError(t, err)
	assert.True(t, tc.Evaluate("Hello Ada"))
	assert.False(t, tc.Evaluate("Hello Bob"))

	empty, err := NewTestCase(1, "anything", nil, "")
	require.NoError(t, err)
	assert.True(t, empty.Evaluate(""))
}

func TestNewFeedback(t *testing.T) {
	_, err := NewFeedback(1, 1, 0, "")
	assert.Error(t, err)
	_, err = NewFeedback(1, 1, 6, "")
	assert.Error(t, err)
	f, err := NewFeedback(1, 2, 5, "great")
	require.NoError(t, err)
	assert.Equal(t, 5, f.Rating)
}

func TestNewRunCreated(t *testing.T) {
	r := NewRun(testVersion(t), nil)
	r.ID = 77
	r.TenantID = 3
	e := NewRunCreated(r)
	assert.Equal(t, EventTypeRunCreated, e.EventType())
	assert.Equal(t, uint64(3), e.TenantID())
	assert.Equal(t, uint64(77), e.RunID)
}
