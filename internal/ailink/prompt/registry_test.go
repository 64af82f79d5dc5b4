package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeMarksOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.md"),
		[]byte("---\nslug: personal-chat\nname: Studio chat\nversion: 2.1.0\nuser_template: \"{{message}}\"\n---\nYou speak for the studio."), 0o600))

	reg, err := RegistryWithOverrides(dir)
	require.NoError(t, err)

	require.Equal(t, []Summary{
		{Slug: "personal-chat", Name: "Studio chat", Version: "2.1.0", Origin: OriginOverride},
		{Slug: "refine-description", Name: "Refine project description", Version: "1.0.0", Origin: OriginEmbedded},
	}, Summarize(reg))
}

func TestSummarizeNilRegistry(t *testing.T) {
	require.Empty(t, Summarize(nil))
}

func TestRequireReportsEveryMissingSlug(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	require.NoError(t, Require(reg, "personal-chat", "refine-description"))
	require.EqualError(t, Require(reg, "personal-chat", "cover-letter", "bio"), "missing prompts: cover-letter, bio")
}

func TestNewRegistryNamesSourceOfSluglessPrompt(t *testing.T) {
	_, err := NewRegistry([]*Prompt{{Source: "drafts/untitled.md"}})
	require.EqualError(t, err, "prompt drafts/untitled.md missing slug")
}
