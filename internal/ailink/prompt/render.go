package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Render produces the system and user messages for def with vars applied.
// Conditionals are resolved before variable substitution.
func Render(def *Prompt, vars map[string]string) (string, string, error) {
	if def == nil {
		return "", "", errors.New("prompt is required")
	}

	for _, required := range def.Config.Input.RequiredVariables {
		if val, ok := vars[required]; !ok || strings.TrimSpace(val) == "" {
			return "", "", fmt.Errorf("required variable %q not provided", required)
		}
	}

	system := ApplyConditionals(def.Config.SystemTemplate, vars)
	system = ApplyVars(system, vars)

	user := def.Config.UserTemplate
	if user == "" {
		user = "{{input}}"
	}
	user = ApplyConditionals(user, vars)
	user = ApplyVars(user, vars)

	if strings.TrimSpace(system) == "" {
		return "", "", errors.New("system prompt is required")
	}
	return strings.TrimSpace(system), strings.TrimSpace(user), nil
}

// ApplyVars replaces {{name}} placeholders in a single pass, so substituted
// values are never expanded again. Unknown placeholders are left as is.
func ApplyVars(template string, vars map[string]string) string {
	var out strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open == -1 {
			out.WriteString(rest)
			break
		}
		closeIdx := strings.Index(rest[open:], "}}")
		if closeIdx == -1 {
			out.WriteString(rest)
			break
		}
		closeIdx += open

		out.WriteString(rest[:open])
		name := rest[open+2 : closeIdx]
		if value, ok := vars[name]; ok {
			out.WriteString(value)
		} else {
			out.WriteString(rest[open : closeIdx+2])
		}
		rest = rest[closeIdx+2:]
	}
	return out.String()
}

// ApplyConditionals handles {{#if var}}content{{else}}fallback{{/if}} blocks.
// If the variable exists and is non-empty, the content is included; otherwise the fallback is used.
func ApplyConditionals(template string, vars map[string]string) string {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			break
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			break
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			break
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		value, exists := vars[varName]
		replacement := elseContent
		if exists && strings.TrimSpace(value) != "" {
			replacement = ifContent
		}

		result = result[:start] + replacement + result[endEnd:]
	}
	return result
}

func findConditionalBlock(input string, start int) (int, int, int, int) {
	depth := 0
	elseStart := -1
	elseEnd := -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}
