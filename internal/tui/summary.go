package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"swiftconvert/internal/results"
)

type SummaryRow struct {
	Label string
	Value string
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if w := lipgloss.Width(row.Label); w > labelWidth {
			labelWidth = w
		}
		if w := lipgloss.Width(row.Value); w > valueWidth {
			valueWidth = w
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// RenderResults lists results one per line with their position, which the
// results commands accept as an alternative to the id.
func RenderResults(rs []results.ImageResult) string {
	if len(rs) == 0 {
		return dimStyle.Render("no results")
	}

	nameWidth := 0
	for _, r := range rs {
		if w := lipgloss.Width(r.Name); w > nameWidth {
			nameWidth = w
		}
	}

	lines := make([]string, 0, len(rs))
	for i, r := range rs {
		marker := " "
		if r.Current {
			marker = "*"
		}
		status := statusStyle(r.Status).Render(padRight(string(r.Status), 10))
		line := fmt.Sprintf("%s %2d  %s  %s  %s  %s",
			titleStyle.Render(marker),
			i+1,
			labelStyle.Render(padRight(r.Name, nameWidth)),
			status,
			dimStyle.Render(padRight(r.Size, 8)),
			dimStyle.Render(r.ID),
		)
		if r.Error != "" {
			line += "  " + errorStyle.Render(r.Error)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RenderDetail shows one result with its information map sorted by key.
func RenderDetail(r results.ImageResult) string {
	rows := []SummaryRow{
		{Label: "Name", Value: r.Name},
		{Label: "Status", Value: string(r.Status)},
		{Label: "Size", Value: r.Size},
		{Label: "Type", Value: r.Type},
		{Label: "Progress", Value: fmt.Sprintf("%d%%", r.Progress)},
	}
	if r.DownloadURL != "" {
		rows = append(rows, SummaryRow{Label: "Download", Value: r.DownloadURL})
	}
	if r.SourceURL != "" {
		rows = append(rows, SummaryRow{Label: "Preview", Value: r.SourceURL})
	}
	if r.Error != "" {
		rows = append(rows, SummaryRow{Label: "Error", Value: r.Error})
	}

	keys := make([]string, 0, len(r.Information))
	for k := range r.Information {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, SummaryRow{Label: k, Value: r.Information[k]})
	}

	return titleStyle.Render(r.ID) + "\n" + RenderSummary(rows)
}

func statusStyle(s results.Status) lipgloss.Style {
	switch s {
	case results.StatusDone:
		return successStyle
	case results.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
