package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordancj7/folio/internal/ailink/content"
	"github.com/jordancj7/folio/internal/ailink/driver"
	"github.com/jordancj7/folio/internal/ailink/prompt"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 5 * time.Minute
)

// Service coordinates prompt loading, provider selection, and driver execution.
type Service struct {
	Providers *Registry
	Registry  prompt.Registry
}

// NewService builds a service from config, loading embedded prompts and any
// overrides from cfg.PromptsDir.
func NewService(cfg Config) (*Service, error) {
	registry, err := prompt.RegistryWithOverrides(cfg.PromptsDir)
	if err != nil {
		return nil, err
	}
	return &Service{Providers: NewRegistry(cfg), Registry: registry}, nil
}

// Generate renders the prompt named by req.PromptSlug, sends it to the routed
// provider and returns the JSON document the model produced. The document is
// validated against the request or prompt response schema. Rate limited or
// unavailable providers are retried on the role's fallbacks.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if s == nil || s.Providers == nil {
		return nil, errors.New("ailink provider registry not configured")
	}
	if s.Registry == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}

	slug := strings.TrimSpace(req.PromptSlug)
	if slug == "" {
		return nil, errors.New("prompt slug is required")
	}

	promptDef, err := s.Registry.Get(slug)
	if err != nil {
		return nil, err
	}

	systemPrompt, userPrompt, err := prompt.Render(promptDef, req.Variables)
	if err != nil {
		return nil, err
	}

	call := &call{
		slug: slug,
		messages: []content.Message{
			content.TextMessage(content.RoleSystem, systemPrompt),
			content.TextMessage(content.RoleUser, userPrompt),
		},
		schema:      req.ResponseSchema,
		temperature: req.Temperature,
		maxTokens:   req.MaxTokens,
		timeout:     s.timeout(req.Timeout),
		includeRaw:  req.IncludeRaw,
	}
	if len(call.schema) == 0 {
		call.schema = promptDef.Config.ResponseSchema
	}
	if call.temperature == nil {
		if t, ok := promptDef.Temperature(); ok {
			call.temperature = &t
		}
	}
	if call.maxTokens == nil {
		if n, ok := promptDef.MaxTokens(); ok {
			call.maxTokens = &n
		}
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = slug
	}

	resolved, err := s.Providers.Resolve(role, promptDef, req.Model)
	if err != nil {
		return nil, err
	}

	resp, err := s.attempt(ctx, resolved, call)
	for _, providerID := range s.Providers.Fallbacks(role) {
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			break
		}
		if providerID == resolved.ProviderID {
			continue
		}
		next, rerr := s.Providers.ResolveID(providerID, promptDef, "")
		if rerr != nil {
			continue
		}
		resp, err = s.attempt(ctx, next, call)
	}
	return resp, err
}

type call struct {
	slug        string
	messages    []content.Message
	schema      map[string]any
	temperature *float64
	maxTokens   *int
	timeout     time.Duration
	includeRaw  bool
}

func (s *Service) attempt(ctx context.Context, resolved *ResolvedProvider, c *call) (*GenerateResponse, error) {
	driverReq := &driver.Request{
		Model:          resolved.Model,
		Messages:       c.messages,
		ResponseFormat: responseFormatFor(resolved, c.slug, c.schema),
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		PromptSlug:     c.slug,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := resolved.Driver.Complete(ctx, driverReq)
	if err != nil && isUnsupportedSchemaError(err) {
		fallbackToJSONObject(driverReq)
		resp, err = resolved.Driver.Complete(ctx, driverReq)
	}
	if err != nil {
		return nil, err
	}

	raw := stripCodeFence(extractContent(resp))
	if raw == "" {
		return nil, &RawResponseError{Err: errors.New("empty response content")}
	}
	if !json.Valid([]byte(raw)) {
		return nil, s.rawError(fmt.Errorf("decode response: invalid JSON"), raw, c.includeRaw)
	}
	if err := ValidateJSON(c.schema, []byte(raw)); err != nil {
		return nil, s.rawError(err, raw, c.includeRaw)
	}

	return &GenerateResponse{
		Raw:      json.RawMessage(raw),
		Provider: resolved.ProviderID,
		Model:    resolved.Model,
		Usage:    resp.Usage,
	}, nil
}

func (s *Service) rawError(err error, raw string, includeRaw bool) error {
	out := &RawResponseError{Err: err}
	if isRawCaptureEnabled(s.Providers.cfg, includeRaw) {
		out.Raw = truncateJSONRaw(json.RawMessage(raw), rawLimit(s.Providers.cfg))
	}
	return out
}

func (s *Service) timeout(requested time.Duration) time.Duration {
	duration := s.Providers.DefaultTimeout()
	if duration <= 0 {
		duration = defaultTimeout
	}
	if requested > 0 {
		duration = requested
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}

func extractContent(resp *driver.Response) string {
	if resp == nil {
		return ""
	}
	if len(resp.Content) == 0 {
		return ""
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}
