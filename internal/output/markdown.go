package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jordancj7/folio/internal/core"
)

// MarkdownFormatter renders listings as markdown.
type MarkdownFormatter struct{}

// FormatMessages renders each message as a section with its full body.
func (f *MarkdownFormatter) FormatMessages(messages []core.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Inbox\n\n")
	if len(messages) == 0 {
		sb.WriteString("_No messages._\n")
		return sb.String(), nil
	}

	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("### %s\n\n", escapeMarkdownCell(m.Subject)))
		sb.WriteString(fmt.Sprintf("- **From**: %s <%s>\n", escapeMarkdownCell(m.Name), m.Email))
		sb.WriteString(fmt.Sprintf("- **Received**: %s\n", m.CreatedAt.UTC().Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("- **ID**: `%s`\n", m.ID))
		if fl := flags(m); fl != "" {
			sb.WriteString(fmt.Sprintf("- **Flags**: %s\n", fl))
		}
		sb.WriteString("\n")
		for _, line := range strings.Split(m.Body, "\n") {
			sb.WriteString("> " + line + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// FormatQuota renders quota usage as a markdown table.
func (f *MarkdownFormatter) FormatQuota(usage []core.QuotaUsage) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Key | Minute | Day | Date (UTC) |\n")
	sb.WriteString("|-----|--------|-----|------------|\n")
	for _, u := range usage {
		sb.WriteString(fmt.Sprintf("| %s | %d/%d | %d/%d | %s |\n",
			escapeMarkdownCell(u.Key),
			u.MinuteUsed, u.MinuteLimit,
			u.DayUsed, u.DayLimit,
			u.Day,
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
