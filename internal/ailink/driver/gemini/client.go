package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/jordancj7/folio/internal/ailink/content"
	"github.com/jordancj7/folio/internal/ailink/driver"
)

const (
	driverName   = "gemini"
	DefaultModel = "gemini-2.0-flash"
)

// Client implements the Gemini driver on top of the Google GenAI SDK.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration

	mu     sync.Mutex
	client *genai.Client
}

// NewClient returns a client with defaults applied. The SDK client is created
// lazily on the first call.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimSpace(baseURL),
		APIKey:  strings.TrimSpace(apiKey),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return driverName
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsStructuredOutput: true,
		SupportsSystemPrompt:     true,
		SupportsStreaming:        false,
	}
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     c.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.HTTPClient,
	}
	if c.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete sends a generateContent request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultModel
	}

	system, turns := req.SystemAndTurns()
	if len(turns) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	sdk, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	contents := buildContents(turns)
	config := buildConfig(req, system)

	started := time.Now()
	trace := driver.TraceEntry{Driver: driverName, Endpoint: "models/" + model + ":generateContent", Model: model, PromptSlug: req.PromptSlug}
	if driver.IsTracingEnabled() {
		trace.RequestBody, _ = json.Marshal(map[string]any{"contents": contents, "config": config})
	}

	resp, err := sdk.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		err = mapError(err)
		driver.TraceCall(trace, started, err)
		return nil, err
	}
	if driver.IsTracingEnabled() {
		trace.Response, _ = json.Marshal(resp)
	}

	out, err := parseResponse(resp)
	driver.TraceCall(trace, started, err)
	return out, err
}

func buildContents(turns []content.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.Role(genai.RoleUser)
		if msg.Role == content.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text(), role))
	}
	return contents
}

func buildConfig(req *driver.Request, system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if strings.TrimSpace(system) != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if format := req.ResponseFormat; format != nil && format.Type != "text" {
		config.ResponseMIMEType = "application/json"
		if format.JSONSchema != nil && len(format.JSONSchema.Schema) > 0 {
			config.ResponseSchema = toGenaiSchema(format.JSONSchema.Schema)
		}
	}
	return config
}

func parseResponse(resp *genai.GenerateContentResponse) (*driver.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("empty response from Gemini")
	}

	candidate := resp.Candidates[0]
	out := &driver.Response{FinishReason: strings.ToLower(string(candidate.FinishReason))}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			text.WriteString(part.Text)
		}
		if text.Len() > 0 {
			out.Content = []content.ContentBlock{{Type: content.ContentTypeText, Text: text.String()}}
		}
	}

	if resp.UsageMetadata != nil {
		out.Usage = &driver.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(out.Content) == 0 && candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("response blocked by safety filters")
	}
	return out, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &driver.ProviderError{Provider: driverName, StatusCode: apiErr.Code, Message: strings.TrimSpace(apiErr.Message)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &driver.ProviderError{Provider: driverName, StatusCode: apiErrPtr.Code, Message: strings.TrimSpace(apiErrPtr.Message)}
	}
	return &driver.ProviderError{Provider: driverName, Message: err.Error()}
}
