package tui

import "github.com/charmbracelet/lipgloss"

// Colors - same slate/emerald palette family as the web dashboard
const (
	colorFg      = "#F8FAFC" // Slate 50
	colorFgMuted = "#94A3B8" // Slate 400
	colorFgFaint = "#64748B" // Slate 500
	colorPrimary = "#10B981" // Emerald 500
	colorAccent  = "#06B6D4" // Cyan 500
	colorWarning = "#F59E0B" // Amber 500
	colorError   = "#EF4444" // Red 500
	colorBorder  = "#334155" // Slate 700
	colorBgCard  = "#1E293B" // Slate 800
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorFg)).
			Background(lipgloss.Color(colorBgCard)).
			Padding(0, 2)

	headerMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorFgMuted)).
			Background(lipgloss.Color(colorBgCard)).
			Padding(0, 2)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorBorder)).
			Padding(0, 1)

	paneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorAccent))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorFgMuted))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorFg))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWarning))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorError))

	stepDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorPrimary))

	stepRunningStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color(colorAccent))

	stepPendingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(colorFgFaint))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorFgMuted))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorFgFaint)).
			Padding(0, 2)

	linkStyle = lipgloss.NewStyle().
			Underline(true).
			Foreground(lipgloss.Color(colorAccent))
)
