package ailink

import (
	"errors"
	"strings"

	"github.com/jordancj7/folio/internal/ailink/driver"
)

// responseFormatFor asks for schema-constrained output when the driver
// supports it and a schema is available, and for a bare JSON object otherwise.
func responseFormatFor(resolved *ResolvedProvider, slug string, schema map[string]any) *driver.ResponseFormat {
	if len(schema) == 0 || resolved == nil || resolved.Driver == nil {
		return &driver.ResponseFormat{Type: "json_object"}
	}
	if !resolved.Driver.Capabilities().SupportsStructuredOutput {
		return &driver.ResponseFormat{Type: "json_object"}
	}

	name := strings.TrimSpace(slug)
	if name == "" {
		name = "folio_schema"
	}
	// OpenAI requires name to be alphanumeric/underscore.
	name = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
	return &driver.ResponseFormat{
		Type: "json_schema",
		JSONSchema: &driver.JSONSchema{
			Name:   name,
			Strict: true,
			Schema: ProviderSchema(schema),
		},
	}
}

func isUnsupportedSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil && perr.StatusCode == 400 {
		msg := strings.ToLower(perr.Message)
		return strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format") || strings.Contains(msg, "response_schema")
	}
	return false
}

func fallbackToJSONObject(req *driver.Request) {
	if req == nil {
		return
	}
	if req.ResponseFormat == nil {
		return
	}
	req.ResponseFormat = &driver.ResponseFormat{Type: "json_object"}
}
