// Package ui renders what share-space prints for humans. Provisioning
// progress comes from step spans; summaries and status are key/value
// blocks and tables.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	teal   = lipgloss.Color("37")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	amber  = lipgloss.Color("214")
	grey   = lipgloss.Color("245")
	border = lipgloss.Color("239")
)

var (
	AccentStyle  = lipgloss.NewStyle().Foreground(teal)
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	WarnStyle    = lipgloss.NewStyle().Foreground(amber)
	MutedStyle   = lipgloss.NewStyle().Foreground(grey)
	LabelStyle   = MutedStyle
	HeadingStyle = AccentStyle.Bold(true)
)

func Accent(s string) string  { return AccentStyle.Render(s) }
func Muted(s string) string   { return MutedStyle.Render(s) }
func Success(s string) string { return SuccessStyle.Render(s) }
func Warn(s string) string    { return WarnStyle.Render(s) }

// Tone grades a state word for colouring.
type Tone int

const (
	Neutral Tone = iota
	Good
	Degraded
	Bad
)

// Toned colours s by tone. Neutral text is left as is.
func Toned(s string, t Tone) string {
	switch t {
	case Good:
		return SuccessStyle.Render(s)
	case Degraded:
		return WarnStyle.Render(s)
	case Bad:
		return ErrorStyle.Render(s)
	default:
		return s
	}
}

// YesNo renders a boolean as a coloured yes or no.
func YesNo(v bool) string {
	if v {
		return Toned("yes", Good)
	}
	return Toned("no", Bad)
}

func SuccessMsg(format string, a ...any) string { return notice(SuccessStyle, "✓", format, a...) }
func WarnMsg(format string, a ...any) string    { return notice(WarnStyle, "!", format, a...) }

func notice(style lipgloss.Style, mark, format string, a ...any) string {
	return style.Render(mark) + " " + fmt.Sprintf(format, a...)
}

func Heading(s string) string {
	return HeadingStyle.Render(s)
}

// Pair is one line of a KeyValues block.
type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders "key: value" lines with the values lined up.
func KeyValues(indent string, pairs ...Pair) string {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p.key)+1)
	}
	label := LabelStyle.Width(width)

	var sb strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&sb, "%s%s %s\n", indent, label.Render(p.key+":"), p.value)
	}
	return sb.String()
}

// Table renders rows under headers in a rounded box. Empty cells show a
// muted dash.
func Table(headers []string, rows [][]string) string {
	cell := lipgloss.NewStyle().Padding(0, 1)
	header := cell.Inherit(HeadingStyle)

	filled := make([][]string, len(rows))
	for i, row := range rows {
		filled[i] = make([]string, len(row))
		for j, v := range row {
			if v == "" {
				v = Muted("-")
			}
			filled[i][j] = v
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(border)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers(headers...).
		Rows(filled...).
		String()
}
