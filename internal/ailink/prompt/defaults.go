package prompt

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Prompt, error) {
	entries, err := defaultPromptsFS.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	results := make([]*Prompt, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := defaultPromptsFS.ReadFile("prompts/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded prompt %s: %w", entry.Name(), err)
		}
		prompt, err := Load(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		prompt.Origin = OriginEmbedded
		results = append(results, prompt)
	}
	return results, nil
}

// DefaultRegistry builds a registry from embedded prompts.
func DefaultRegistry() (Registry, error) {
	return RegistryWithOverrides("")
}

// RegistryWithOverrides builds a registry from embedded prompts, replacing
// any whose slug also appears in dir.
func RegistryWithOverrides(dir string) (Registry, error) {
	prompts, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return NewRegistry(prompts)
	}

	overrides, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	return NewRegistry(merge(prompts, overrides))
}

func merge(base, overrides []*Prompt) []*Prompt {
	bySlug := make(map[string]int, len(base))
	out := make([]*Prompt, 0, len(base)+len(overrides))
	for _, p := range base {
		bySlug[p.Config.Slug] = len(out)
		out = append(out, p)
	}
	for _, p := range overrides {
		if idx, ok := bySlug[p.Config.Slug]; ok {
			out[idx] = p
			continue
		}
		bySlug[p.Config.Slug] = len(out)
		out = append(out, p)
	}
	return out
}
