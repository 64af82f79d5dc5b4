package flow

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

// DefaultOwner is the portfolio owner named in the chat prompt.
const DefaultOwner = "Janitha CJ"

//go:embed knowledge.md
var defaultKnowledge string

// DefaultKnowledge returns the embedded knowledge base.
func DefaultKnowledge() string {
	return defaultKnowledge
}

// LoadKnowledge reads the knowledge base from path, or returns the embedded
// one when path is empty.
func LoadKnowledge(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultKnowledge(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied knowledge file
	if err != nil {
		return "", fmt.Errorf("read knowledge file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("knowledge file %s is empty", path)
	}
	return string(data), nil
}
