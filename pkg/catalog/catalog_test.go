package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerelay/pagerelay/pkg/types"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	cat, err := NewLoader("", "").Load()
	require.NoError(t, err)

	ids := cat.PlatformIDs()
	assert.Contains(t, ids, "openai")
	assert.Contains(t, ids, "anthropic")
	assert.Contains(t, ids, "gemini")

	openai, err := cat.Platform("openai")
	require.NoError(t, err)
	require.NotNil(t, openai.API)
	assert.Equal(t, AuthBearer, openai.API.AuthType)
	assert.Equal(t, "gpt-4o", openai.API.DefaultModel)
	assert.NotEmpty(t, openai.Models())

	require.NotNil(t, openai.Automation)
	assert.NotEmpty(t, openai.Automation.InputSelectors)
	assert.NotEmpty(t, openai.Automation.SendSelectors)
	assert.Greater(t, openai.Automation.MaxAttempts, 0)
}

func TestAutomationOnlyPlatformHasNoModels(t *testing.T) {
	cat, err := NewLoader("", "").Load()
	require.NoError(t, err)

	gemini, err := cat.Platform("gemini")
	require.NoError(t, err)
	assert.Nil(t, gemini.API)
	assert.Empty(t, gemini.Models())
}

func TestUnknownPlatform(t *testing.T) {
	cat, err := NewLoader("", "").Load()
	require.NoError(t, err)

	_, err = cat.Platform("nope")
	assert.Error(t, err)
}

func TestDefaultPrompts(t *testing.T) {
	cat, err := NewLoader("", "").Load()
	require.NoError(t, err)

	for _, ct := range []types.ContentType{
		types.ContentTypeGeneral,
		types.ContentTypeReddit,
		types.ContentTypeYouTube,
		types.ContentTypePDF,
	} {
		p := cat.DefaultPrompt(ct)
		assert.NotEmpty(t, p.Name, "prompt name for %s", ct)
		assert.NotEmpty(t, p.Content, "prompt content for %s", ct)
	}

	// Unknown types fall back to the general prompt.
	fallback := cat.DefaultPrompt(types.ContentType("unknown"))
	assert.Equal(t, cat.DefaultPrompt(types.ContentTypeGeneral), fallback)
}

func TestLoadOverrideFile(t *testing.T) {
	dir := t.TempDir()
	platformsPath := filepath.Join(dir, "platforms.yaml")
	override := `
platforms:
  - id: localai
    displayName: Local AI
    api:
      endpoint: http://localhost:8080/v1/chat/completions
      authType: bearer
      wireFormat: openai
      models: [local-model]
      defaultModel: local-model
`
	require.NoError(t, os.WriteFile(platformsPath, []byte(override), 0600))

	cat, err := NewLoader(platformsPath, "").Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localai"}, cat.PlatformIDs())
	p, err := cat.Platform("localai")
	require.NoError(t, err)
	assert.Equal(t, "Local AI", p.DisplayName)
}

func TestLoadIsCached(t *testing.T) {
	loader := NewLoader("", "")
	first, err := loader.Load()
	require.NoError(t, err)

	second, err := loader.Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestDuplicatePlatformID(t *testing.T) {
	dir := t.TempDir()
	platformsPath := filepath.Join(dir, "platforms.yaml")
	dup := `
platforms:
  - id: a
    displayName: A
  - id: a
    displayName: A again
`
	require.NoError(t, os.WriteFile(platformsPath, []byte(dup), 0600))

	_, err := NewLoader(platformsPath, "").Load()
	assert.Error(t, err)
}
