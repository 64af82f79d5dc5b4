package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jordancj7/folio/internal/core"
)

// TableFormatter renders listings as ASCII tables.
type TableFormatter struct{}

// FormatMessages renders messages newest first, as given.
func (f *TableFormatter) FormatMessages(messages []core.Message) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Received", "From", "Subject", "Flags"})

	unread := 0
	for _, m := range messages {
		if !m.Read {
			unread++
		}
		t.AppendRow(table.Row{
			m.ID,
			m.CreatedAt.UTC().Format(time.RFC3339),
			fmt.Sprintf("%s <%s>", m.Name, m.Email),
			preview(m.Subject),
			flags(m),
		})
	}

	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d messages", len(messages)), fmt.Sprintf("%d unread", unread)})
	return t.Render(), nil
}

// FormatQuota renders one row per caller key.
func (f *TableFormatter) FormatQuota(usage []core.QuotaUsage) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Minute", "Day", "Date (UTC)"})

	for _, u := range usage {
		t.AppendRow(table.Row{
			u.Key,
			fmt.Sprintf("%d/%d", u.MinuteUsed, u.MinuteLimit),
			fmt.Sprintf("%d/%d", u.DayUsed, u.DayLimit),
			u.Day,
		})
	}

	if len(usage) == 0 {
		t.AppendRow(table.Row{"(no stored rate windows)", "", "", ""})
	}
	return t.Render(), nil
}
