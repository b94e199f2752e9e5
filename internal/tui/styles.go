package tui

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.Color("#1E88E5")
	subtle  = lipgloss.Color("#6B7280")
	danger  = lipgloss.Color("#E53935")
	warning = lipgloss.Color("#FB8C00")

	docStyle = lipgloss.NewStyle().Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primary)

	flagStyle = lipgloss.NewStyle().
			Foreground(warning)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(subtle)

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(primary).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger)

	statusStyle = lipgloss.NewStyle().
			Foreground(warning)

	labelStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Width(10)

	focusedLabelStyle = labelStyle.
				Foreground(primary).
				Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(warning).
			Padding(0, 1)
)
