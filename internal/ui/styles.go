package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary   = lipgloss.Color("#D4A574")
	ColorSecondary = lipgloss.Color("#A0A0A0")
	ColorAccent    = lipgloss.Color("#7AA2F7")
	ColorSuccess   = lipgloss.Color("#9ECE6A")
	ColorError     = lipgloss.Color("#F7768E")
	ColorWarning   = lipgloss.Color("#E0AF68")
	ColorDim       = lipgloss.Color("#565656")
	ColorBgAlt     = lipgloss.Color("#24283B")
	ColorText      = lipgloss.Color("#C0CAF5")
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			PaddingLeft(1)

	StyleStatusBar = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorBgAlt).
			PaddingLeft(1).
			PaddingRight(1)

	StyleActive = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StyleItem = lipgloss.NewStyle().
			Foreground(ColorText)

	StyleDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim)
)
