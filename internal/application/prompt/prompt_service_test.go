package prompt

import (
	"testing"

	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptService_CreatePromptWithInitialVersion(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")

	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)

	resp, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{
		ProjectID: project.ID,
		Name:      "Greeter",
		Version:   openAIVersion("Hello {{name}}"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.LatestVersion)
	require.Len(t, resp.Versions, 1)
	assert.Equal(t, 1, resp.Versions[0].Number)
	assert.Equal(t, project.TenantID, resp.Versions[0].TenantID)

	got, err := f.prompts.GetPrompt(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greeter", got.Name)
	assert.Len(t, got.Versions, 1)
}

func TestPromptService_CreatePromptRollsBackOnInvalidVersion(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")
	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)

	_, err = f.prompts.CreatePrompt(ctx, CreatePromptRequest{
		ProjectID: project.ID,
		Name:      "Broken",
		Version:   &CreateVersionRequest{Template: "x", Provider: "openai", Model: "gpt-2"},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	list, err := f.prompts.ListPrompts(ctx, project.ID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestPromptService_VersionNumbersIncreasePerPrompt(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")
	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	a, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{ProjectID: project.ID, Name: "A"})
	require.NoError(t, err)
	b, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{ProjectID: project.ID, Name: "B"})
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		v, err := f.prompts.CreateVersion(ctx, a.ID, *openAIVersion("v"))
		require.NoError(t, err)
		assert.Equal(t, want, v.Number)
	}
	v, err := f.prompts.CreateVersion(ctx, b.ID, CreateVersionRequest{Template: "v", Provider: " OpenAI ", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Number)
	assert.Equal(t, "openai", v.Provider)

	versions, err := f.prompts.ListVersions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Number)

	second, err := f.prompts.GetVersion(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)
}

func TestPromptService_VersionValidation(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")
	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	p, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{ProjectID: project.ID, Name: "A"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  CreateVersionRequest
	}{
		{"unknown provider", CreateVersionRequest{Template: "x", Provider: "acme-ai", Model: "m"}},
		{"unknown model", CreateVersionRequest{Template: "x", Provider: "anthropic", Model: "gpt-4o"}},
		{"empty template", CreateVersionRequest{Template: " ", Provider: "openai", Model: "gpt-4o"}},
		{"max tokens above provider limit", CreateVersionRequest{Template: "x", Provider: "google", Model: "gemini-1.5-pro", Params: map[string]any{"max_tokens": float64(100_000)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.prompts.CreateVersion(ctx, p.ID, tt.req)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}

	got, err := f.prompts.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LatestVersion)
}

func TestPromptService_OpenRouterAcceptsVendorModels(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")
	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	p, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{ProjectID: project.ID, Name: "A"})
	require.NoError(t, err)

	v, err := f.prompts.CreateVersion(ctx, p.ID, CreateVersionRequest{Template: "x", Provider: "openrouter", Model: "meta-llama/llama-3-70b"})
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-3-70b", v.Model)
}

func TestPromptService_TenantIsolation(t *testing.T) {
	f := newPromptFixture(t)
	ctxA := f.tenantCtx(t, "Acme")
	ctxB := f.tenantCtx(t, "Globex")

	project, err := f.prompts.CreateProject(ctxA, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	p, err := f.prompts.CreatePrompt(ctxA, CreatePromptRequest{ProjectID: project.ID, Name: "Secret", Version: openAIVersion("x")})
	require.NoError(t, err)

	_, err = f.prompts.GetPrompt(ctxB, p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.prompts.CreatePrompt(ctxB, CreatePromptRequest{ProjectID: project.ID, Name: "Intruder"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.prompts.CreateVersion(ctxB, p.ID, *openAIVersion("y"))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, f.prompts.DeletePrompt(ctxB, p.ID), shared.ErrNotFound)

	projects, err := f.prompts.ListProjects(ctxB, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Empty(t, projects.Items)

	still, err := f.prompts.GetPrompt(ctxA, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, still.LatestVersion)
}

func TestPromptService_UpdateAndDelete(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")
	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	p, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{ProjectID: project.ID, Name: "A", Version: openAIVersion("x")})
	require.NoError(t, err)

	name, desc := "Renamed", "now with a description"
	updated, err := f.prompts.UpdatePrompt(ctx, p.ID, UpdatePromptRequest{Name: &name, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 1, updated.LatestVersion)

	empty := " "
	_, err = f.prompts.UpdatePrompt(ctx, p.ID, UpdatePromptRequest{Name: &empty})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, f.prompts.DeletePrompt(ctx, p.ID))
	_, err = f.prompts.GetPrompt(ctx, p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPromptService_TestCases(t *testing.T) {
	f := newPromptFixture(t)
	ctx := f.tenantCtx(t, "Acme")
	project, err := f.prompts.CreateProject(ctx, CreateProjectRequest{Name: "Support"})
	require.NoError(t, err)
	p, err := f.prompts.CreatePrompt(ctx, CreatePromptRequest{ProjectID: project.ID, Name: "A"})
	require.NoError(t, err)

	tc, err := f.prompts.CreateTestCase(ctx, p.ID, CreateTestCaseRequest{
		Name:           "greets by name",
		Variables:      map[string]string{"name": "Ana"},
		ExpectContains: "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, tc.PromptID)

	list, err := f.prompts.ListTestCases(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana", list[0].Variables["name"])

	_, err = f.prompts.CreateTestCase(ctx, 9999, CreateTestCaseRequest{Name: "orphan"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
