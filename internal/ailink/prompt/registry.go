package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Registry provides access to prompt definitions.
type Registry interface {
	Get(slug string) (*Prompt, error)
	List() []*Prompt
}

// InMemoryRegistry stores prompts by slug.
type InMemoryRegistry struct {
	prompts map[string]*Prompt
}

// NewRegistry builds a registry from prompts. Slugs must be unique.
func NewRegistry(prompts []*Prompt) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{prompts: make(map[string]*Prompt, len(prompts))}
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		if slug == "" {
			return nil, fmt.Errorf("prompt %s missing slug", p.Source)
		}
		if _, ok := reg.prompts[slug]; ok {
			return nil, fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		reg.prompts[slug] = p
	}
	return reg, nil
}

// Get returns the prompt for the slug.
func (r *InMemoryRegistry) Get(slug string) (*Prompt, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry not configured")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("prompt slug is required")
	}
	p, ok := r.prompts[slug]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", slug)
	}
	return p, nil
}

// List returns prompts sorted by slug.
func (r *InMemoryRegistry) List() []*Prompt {
	if r == nil {
		return nil
	}
	slugs := make([]string, 0, len(r.prompts))
	for slug := range r.prompts {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	result := make([]*Prompt, 0, len(slugs))
	for _, slug := range slugs {
		result = append(result, r.prompts[slug])
	}
	return result
}

// Summary is the public view of a loaded prompt. Templates stay private.
type Summary struct {
	Slug    string `json:"slug"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Origin  string `json:"origin"`
}

// Summarize lists every prompt in reg.
func Summarize(reg Registry) []Summary {
	if reg == nil {
		return nil
	}
	prompts := reg.List()
	out := make([]Summary, 0, len(prompts))
	for _, p := range prompts {
		origin := p.Origin
		if origin == "" {
			origin = OriginEmbedded
		}
		out = append(out, Summary{
			Slug:    p.Config.Slug,
			Name:    p.Config.Name,
			Version: p.Config.Version,
			Origin:  origin,
		})
	}
	return out
}

// Require reports every slug missing from reg in one error.
func Require(reg Registry, slugs ...string) error {
	var missing []string
	for _, slug := range slugs {
		if _, err := reg.Get(slug); err != nil {
			missing = append(missing, slug)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing prompts: %s", strings.Join(missing, ", "))
	}
	return nil
}
