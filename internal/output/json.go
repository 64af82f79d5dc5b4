package output

import (
	"encoding/json"

	"github.com/jordancj7/folio/internal/core"
)

// JSONFormatter renders listings as JSON arrays.
type JSONFormatter struct {
	Indent bool
}

// FormatMessages renders messages as JSON.
func (f *JSONFormatter) FormatMessages(messages []core.Message) (string, error) {
	if messages == nil {
		messages = []core.Message{}
	}
	return f.marshal(messages)
}

// FormatQuota renders quota usage as JSON.
func (f *JSONFormatter) FormatQuota(usage []core.QuotaUsage) (string, error) {
	if usage == nil {
		usage = []core.QuotaUsage{}
	}
	return f.marshal(usage)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
