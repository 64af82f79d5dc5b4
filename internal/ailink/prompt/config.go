package prompt

// Config describes a prompt definition loaded from YAML frontmatter.
type Config struct {
	Slug           string         `yaml:"slug" json:"slug"`
	Name           string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	Version        string         `yaml:"version,omitempty" json:"version,omitempty"`
	Author         string         `yaml:"author,omitempty" json:"author,omitempty"`
	Updated        string         `yaml:"updated,omitempty" json:"updated,omitempty"`
	Input          InputSpec      `yaml:"input,omitempty" json:"input,omitempty"`
	SystemTemplate string         `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	UserTemplate   string         `yaml:"user_template,omitempty" json:"user_template,omitempty"`
	ResponseSchema map[string]any `yaml:"response_schema,omitempty" json:"response_schema,omitempty"`
	ProviderHints  map[string]any `yaml:"provider_hints,omitempty" json:"provider_hints,omitempty"`
}

// InputSpec defines prompt input requirements.
type InputSpec struct {
	RequiredVariables []string `yaml:"required_variables,omitempty" json:"required_variables,omitempty"`
	OptionalVariables []string `yaml:"optional_variables,omitempty" json:"optional_variables,omitempty"`
}

// Prompt origins.
const (
	OriginEmbedded = "embedded"
	OriginOverride = "override"
)

// Prompt wraps a validated prompt configuration with its source.
type Prompt struct {
	Config Config
	Source string
	// Origin is OriginEmbedded for prompts built into the binary and
	// OriginOverride for prompts read from the prompts directory.
	Origin string
}

// Temperature returns the provider_hints.temperature value when present.
func (p *Prompt) Temperature() (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p.Config.ProviderHints["temperature"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// MaxTokens returns the provider_hints.max_tokens value when present.
func (p *Prompt) MaxTokens() (int, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p.Config.ProviderHints["max_tokens"].(type) {
	case int:
		return v, v > 0
	case float64:
		return int(v), v > 0
	default:
		return 0, false
	}
}
