package ui

import (
	"fmt"
	"strings"

	"sharespace/internal/report"
)

// RenderSummary formats the post-install report.
func RenderSummary(s report.Summary) string {
	var sb strings.Builder

	if s.Ready {
		sb.WriteString(SuccessMsg("share-space is running") + "\n")
	} else {
		sb.WriteString(WarnMsg("share-space was started but the app is %s", s.Readiness) + "\n")
	}

	sb.WriteString("\n" + Heading("Open") + "\n")
	sb.WriteString(KeyValues("  ", pairs(s.URLs())...))

	sb.WriteString("\n" + Heading("Manage") + "\n")
	sb.WriteString(KeyValues("  ", pairs(s.Commands())...))

	sb.WriteString("\n" + Heading("Details") + "\n")
	sb.WriteString(KeyValues("  ", pairs(s.Details())...))

	if len(s.Diagnostics) > 0 {
		sb.WriteString("\n" + Heading("Diagnostics") + "\n")
		for _, line := range s.Diagnostics {
			sb.WriteString("  " + Muted(line) + "\n")
		}
	}

	sb.WriteString("\n" + Heading("Next steps") + "\n")
	for i, step := range s.NextSteps() {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
	}
	return sb.String()
}

func pairs(items []report.Item) []Pair {
	out := make([]Pair, 0, len(items))
	for _, item := range items {
		out = append(out, KV(item.Label, Accent(item.Value)))
	}
	return out
}
