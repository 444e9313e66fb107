// Package tui provides the BubbleTea-based task dashboard for cowork.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bkonkle/cowork/internal/task"
)

// Palette.
var (
	ColorPrimary   = lipgloss.Color("12")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorWarning   = lipgloss.Color("226") // Yellow
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("14")  // Cyan
	ColorMuted     = lipgloss.Color("240") // Dark gray
	ColorPlanning  = lipgloss.Color("33")  // Blue
	ColorCancelled = lipgloss.Color("208") // Orange
	ColorText      = lipgloss.Color("255")
)

var (
	// HeaderStyle is used for pane headers.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	// SelectedStyle highlights the selected task row.
	SelectedStyle = lipgloss.NewStyle().Foreground(ColorText).Background(lipgloss.Color("57"))

	MutedStyle   = lipgloss.NewStyle().Foreground(ColorSecondary)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	InfoStyle    = lipgloss.NewStyle().Foreground(ColorInfo)
	HelpStyle    = lipgloss.NewStyle().Foreground(ColorMuted)

	// TitleStyle renders the dashboard title bar.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	// PromptStyle renders the pending confirmation banner.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(ColorWarning).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Background(lipgloss.Color("236"))
)

// glyph is an indicator character and the color it is drawn in.
type glyph struct {
	char  string
	color lipgloss.Color
}

func (g glyph) render() string {
	return lipgloss.NewStyle().Foreground(g.color).Render(g.char)
}

var statusGlyphs = map[task.Status]glyph{
	task.StatusNotStarted: {"○", ColorSecondary},
	task.StatusPlanning:   {"◔", ColorPlanning},
	task.StatusExecuting:  {"◐", ColorWarning},
	task.StatusCompleted:  {"✓", ColorSuccess},
	task.StatusFailed:     {"✗", ColorError},
	task.StatusCancelled:  {"⊘", ColorCancelled},
}

// Keyed by channel state name; an empty state means the task is not watched.
var connectionGlyphs = map[string]glyph{
	"open":             {"●", ColorSuccess},
	"connecting":       {"◌", ColorWarning},
	"closed_retrying":  {"◌", ColorWarning},
	"closed_exhausted": {"●", ColorError},
	"closed_clean":     {"○", ColorSecondary},
}

// TaskStatusIcon returns a styled icon for task status.
func TaskStatusIcon(status task.Status) string {
	g, ok := statusGlyphs[status]
	if !ok {
		return "?"
	}
	return g.render()
}

// TaskStatusColor returns the color for a task status.
func TaskStatusColor(status task.Status) lipgloss.Color {
	if g, ok := statusGlyphs[status]; ok {
		return g.color
	}
	return ColorText
}

// ConnectionIcon returns a styled indicator for an event channel state.
func ConnectionIcon(state string) string {
	g, ok := connectionGlyphs[state]
	if !ok {
		return " "
	}
	return g.render()
}

// LevelColor returns the color for an event line level.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "error":
		return ColorError
	case "warn":
		return ColorWarning
	case "success":
		return ColorSuccess
	default:
		return ColorText
	}
}

// PaneBorder returns the border for a pane, highlighted when focused.
func PaneBorder(focused bool) lipgloss.Style {
	borderColor := ColorMuted
	if focused {
		borderColor = ColorPrimary
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor)
}

// Truncate truncates a string to maxLen runes, adding "..." if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(0, maxLen)])
	}
	return string(r[:maxLen-3]) + "..."
}
