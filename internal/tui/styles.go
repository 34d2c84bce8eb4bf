package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusUserStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("2")).
			Bold(true)

	statusBarBgStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	// sidebar
	sidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(lipgloss.Color("238"))

	sidebarTitleStyle = lipgloss.NewStyle().Bold(true)

	chatActiveStyle = lipgloss.NewStyle().Bold(true)

	chatCursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Background(lipgloss.Color("236")).
			Bold(true)

	// empty state
	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 2)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

var thinkingSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}
