package tui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	TextPrimary lipgloss.AdaptiveColor
	TextMuted   lipgloss.AdaptiveColor
	Accent      lipgloss.AdaptiveColor
	Error       lipgloss.AdaptiveColor
	Border      lipgloss.AdaptiveColor

	Title    lipgloss.Style
	RoleYou  lipgloss.Style
	RoleAI   lipgloss.Style
	RoleTool lipgloss.Style
	RoleErr  lipgloss.Style
	Footer   lipgloss.Style
	InputBox lipgloss.Style
	Spinner  lipgloss.Style
}

func NewTheme() Theme {
	t := Theme{
		TextPrimary: lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#e8e8e8"},
		TextMuted:   lipgloss.AdaptiveColor{Light: "#6a6a6a", Dark: "#9a9a9a"},
		Accent:      lipgloss.AdaptiveColor{Light: "#0f6d48", Dark: "#5fd7a7"},
		Error:       lipgloss.AdaptiveColor{Light: "#b3261e", Dark: "#ff6b6b"},
		Border:      lipgloss.AdaptiveColor{Light: "#bbbbbb", Dark: "#555555"},
	}
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.RoleYou = lipgloss.NewStyle().Bold(true).Foreground(t.TextPrimary)
	t.RoleAI = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.RoleTool = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.RoleErr = lipgloss.NewStyle().Bold(true).Foreground(t.Error)
	t.Footer = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.InputBox = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(t.Border).Padding(0, 1)
	t.Spinner = lipgloss.NewStyle().Foreground(t.Accent)
	return t
}
