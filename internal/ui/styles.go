// internal/ui/styles.go

package ui

import "github.com/charmbracelet/lipgloss"

var (
	subtle    = lipgloss.Color("#6C7086")
	highlight = lipgloss.Color("#7DC4E4")
	special   = lipgloss.Color("#FF9E64")
	errColor  = lipgloss.Color("#F38BA8")
	statusFg  = lipgloss.Color("#E7E7E7")

	statusBarStyle = lipgloss.NewStyle().
			Foreground(statusFg).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	statusHostStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	statusPhaseStyle = lipgloss.NewStyle().
				Foreground(special)

	statusNetStyle = lipgloss.NewStyle().
			Foreground(subtle)

	promptStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(subtle)
)
