package ailink

import (
	"encoding/json"
	"time"

	"github.com/jordancj7/folio/internal/ailink/driver"
)

// GenerateRequest is the high-level request for a structured generation.
type GenerateRequest struct {
	// Role selects the provider route. Defaults to PromptSlug.
	Role       string
	PromptSlug string
	Variables  map[string]string
	Model      string
	Timeout    time.Duration

	// ResponseSchema overrides the prompt's response_schema.
	ResponseSchema map[string]any

	Temperature *float64
	MaxTokens   *int

	// IncludeRaw keeps the raw payload on RawResponseError when raw capture
	// is enabled in config.
	IncludeRaw bool
}

// GenerateResponse carries the validated JSON document returned by the model.
type GenerateResponse struct {
	Raw      json.RawMessage `json:"raw"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Usage    *driver.Usage   `json:"usage,omitempty"`
}
