package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	prompts, err := LoadDefaults()
	require.NoError(t, err)
	require.NotEmpty(t, prompts)

	reg, err := NewRegistry(prompts)
	require.NoError(t, err)

	for _, slug := range []string{"personal-chat", "refine-description"} {
		prompt, err := reg.Get(slug)
		require.NoError(t, err, slug)
		require.NotEmpty(t, prompt.Config.SystemTemplate)
		require.NotEmpty(t, prompt.Config.UserTemplate)
	}

	chat, err := reg.Get("personal-chat")
	require.NoError(t, err)
	temp, ok := chat.Temperature()
	require.True(t, ok)
	require.InDelta(t, 0.7, temp, 1e-9)
	maxTokens, ok := chat.MaxTokens()
	require.True(t, ok)
	require.Equal(t, 1024, maxTokens)
}

func TestLoadRejectsInvalidPrompts(t *testing.T) {
	_, err := Load("empty.md", []byte("   "))
	require.Error(t, err)

	_, err = Load("no-body.md", []byte("---\nslug: x\n---\n"))
	require.ErrorContains(t, err, "system_template")

	_, err = Load("bad-slug.md", []byte("---\nslug: Bad Slug\n---\nbody"))
	require.ErrorContains(t, err, "validate prompt")

	_, err = Load("bad-hints.md", []byte("---\nslug: ok\nprovider_hints:\n  temperature: 9\n---\nbody"))
	require.ErrorContains(t, err, "validate prompt")
}

func TestRegistryWithOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "refine.md"), []byte("---\nslug: refine-description\nuser_template: \"{{description}}\"\n---\nCustom refine."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte("---\nslug: extra\n---\nExtra prompt."), 0o600))

	reg, err := RegistryWithOverrides(dir)
	require.NoError(t, err)

	refine, err := reg.Get("refine-description")
	require.NoError(t, err)
	require.Equal(t, "Custom refine.", refine.Config.SystemTemplate)

	_, err = reg.Get("extra")
	require.NoError(t, err)
	require.Len(t, reg.List(), 3)
}

func TestRegistryWithMissingOverrideDir(t *testing.T) {
	reg, err := RegistryWithOverrides(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Len(t, reg.List(), 2)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	p := &Prompt{Config: Config{Slug: "a", SystemTemplate: "x"}}
	_, err := NewRegistry([]*Prompt{p, p})
	require.ErrorContains(t, err, "duplicate")
}
