package ailink

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/invopop/jsonschema"
)

// ReflectSchema derives an inline JSON Schema document from a Go value's type.
// Field names follow json tags, constraints follow jsonschema tags, and fields
// without omitempty are required.
func ReflectSchema(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	doc := reflector.Reflect(v)

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return out, nil
}

// ProviderSchema returns a copy of doc without the meta keywords providers
// reject in structured-output requests.
func ProviderSchema(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		switch key {
		case "$schema", "$id", "$comment":
			continue
		}
		out[key] = value
	}
	return out
}

// ValidateJSON checks payload against doc.
func ValidateJSON(doc map[string]any, payload []byte) error {
	if len(doc) == 0 {
		return nil
	}
	schemaBytes, err := json.Marshal(ProviderSchema(doc))
	if err != nil {
		return fmt.Errorf("encode response schema: %w", err)
	}
	validator, err := schema.NewValidator(schemaBytes)
	if err != nil {
		return fmt.Errorf("compile response schema: %w", err)
	}
	diagnostics, err := validator.ValidateJSON(payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		messages := make([]string, 0, len(diagnostics))
		for _, d := range diagnostics {
			messages = append(messages, d.Message)
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
	}
	return nil
}
